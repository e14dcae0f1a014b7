package admission

import (
	"testing"

	"github.com/stretchr/testify/assert"

	id "clicr/pkg/domain"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name      string
		occupancy int
		rule      Rule
		isEntry   bool
		want      id.AdmissionDecision
	}{
		{
			name:      "exit is always allowed even when full",
			occupancy: 500,
			rule:      Rule{MaxCapacity: 100, Mode: id.EnforcementHardStop},
			isEntry:   false,
			want:      id.AdmissionAllow,
		},
		{
			name:      "no limit when capacity is zero",
			occupancy: 10000,
			rule:      Rule{MaxCapacity: 0, Mode: id.EnforcementHardStop},
			isEntry:   true,
			want:      id.AdmissionAllow,
		},
		{
			name:      "no limit when capacity is negative",
			occupancy: 10,
			rule:      Rule{MaxCapacity: -1, Mode: id.EnforcementHardStop},
			isEntry:   true,
			want:      id.AdmissionAllow,
		},
		{
			name:      "below capacity allows",
			occupancy: 99,
			rule:      Rule{MaxCapacity: 100, Mode: id.EnforcementHardStop},
			isEntry:   true,
			want:      id.AdmissionAllow,
		},
		{
			name:      "at capacity with hard stop blocks",
			occupancy: 100,
			rule:      Rule{MaxCapacity: 100, Mode: id.EnforcementHardStop},
			isEntry:   true,
			want:      id.AdmissionBlock,
		},
		{
			name:      "over capacity with manager override requires override",
			occupancy: 101,
			rule:      Rule{MaxCapacity: 100, Mode: id.EnforcementManagerOverride},
			isEntry:   true,
			want:      id.AdmissionRequireOverride,
		},
		{
			name:      "at capacity with warn only warns",
			occupancy: 100,
			rule:      Rule{MaxCapacity: 100, Mode: id.EnforcementWarnOnly},
			isEntry:   true,
			want:      id.AdmissionWarn,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.occupancy, tt.rule, tt.isEntry))
		})
	}
}
