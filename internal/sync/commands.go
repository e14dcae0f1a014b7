package sync

import (
	"context"
	"encoding/json"
	"time"

	"clicr/internal/access"
	"clicr/internal/admission"
	"clicr/internal/audit"
	"clicr/internal/idcheck"
	"clicr/internal/ledger/counter"
	"clicr/internal/ledger/models"
	id "clicr/pkg/domain"
	dErrors "clicr/pkg/domain-errors"
	"clicr/pkg/email"
	"clicr/pkg/platform/sentinel"
	pstrings "clicr/pkg/platform/strings"
	"clicr/pkg/requestcontext"
)

// ProcessorRequest aliases the event processor's request type so the local
// Processor interface matches the concrete implementation.
type ProcessorRequest = counter.Request

// Command is one named action with its payload.
type Command struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response carries the updated scope-filtered working copy plus any decision
// detail the door client needs to render enforcement messaging.
type Response struct {
	Dataset   *models.Dataset  `json:"dataset"`
	Admission *AdmissionResult `json:"admission,omitempty"`
	Scan      *ScanOutcome     `json:"scan,omitempty"`
}

// AdmissionResult reports the capacity policy decision on an entry attempt.
type AdmissionResult struct {
	Decision id.AdmissionDecision `json:"decision"`
	Reason   string               `json:"reason,omitempty"`
}

// ScanOutcome reports an identity scan decision, including the match
// confidence a soft ban hit needs for manual confirmation at the door.
type ScanOutcome struct {
	Result       models.ScanResult      `json:"result"`
	DenialReason string                 `json:"denial_reason,omitempty"`
	Confidence   idcheck.MatchConfidence `json:"confidence,omitempty"`
}

// Command action names.
const (
	ActionRecordEvent   = "RECORD_EVENT"
	ActionRecordScan    = "RECORD_SCAN"
	ActionResetCounts   = "RESET_COUNTS"
	ActionAddVenue      = "ADD_VENUE"
	ActionUpdateVenue   = "UPDATE_VENUE"
	ActionDeleteVenue   = "DELETE_VENUE"
	ActionAddArea       = "ADD_AREA"
	ActionUpdateArea    = "UPDATE_AREA"
	ActionDeleteArea    = "DELETE_AREA"
	ActionAddDevice     = "ADD_DEVICE"
	ActionUpdateDevice  = "UPDATE_DEVICE"
	ActionDeleteDevice  = "DELETE_DEVICE"
	ActionUpdateUser    = "UPDATE_USER"
	ActionAddPatronBan  = "ADD_PATRON_BAN"
	ActionApplyStaffBan = "APPLY_STAFF_BAN"
)

func (s *Service) dispatch(ctx context.Context, caller *models.User, ds *models.Dataset, cmd Command) (*Response, error) {
	switch cmd.Action {
	case ActionRecordEvent:
		return s.recordEvent(ctx, caller, ds, cmd.Payload)
	case ActionRecordScan:
		return s.recordScan(ctx, caller, ds, cmd.Payload)
	case ActionResetCounts:
		return s.resetCounts(ctx, caller, ds, cmd.Payload)
	case ActionAddVenue:
		return s.addVenue(ctx, caller, ds, cmd.Payload)
	case ActionUpdateVenue:
		return s.updateVenue(ctx, caller, ds, cmd.Payload)
	case ActionDeleteVenue:
		return s.deleteVenue(ctx, caller, ds, cmd.Payload)
	case ActionAddArea:
		return s.addArea(ctx, caller, ds, cmd.Payload)
	case ActionUpdateArea:
		return s.updateArea(ctx, caller, ds, cmd.Payload)
	case ActionDeleteArea:
		return s.deleteArea(ctx, caller, ds, cmd.Payload)
	case ActionAddDevice:
		return s.addDevice(ctx, caller, ds, cmd.Payload)
	case ActionUpdateDevice:
		return s.updateDevice(ctx, caller, ds, cmd.Payload)
	case ActionDeleteDevice:
		return s.deleteDevice(ctx, caller, ds, cmd.Payload)
	case ActionUpdateUser:
		return s.updateUser(ctx, caller, ds, cmd.Payload)
	case ActionAddPatronBan:
		return s.addPatronBan(ctx, caller, ds, cmd.Payload)
	case ActionApplyStaffBan:
		return s.applyStaffBan(ctx, caller, ds, cmd.Payload)
	default:
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown command action")
	}
}

func decodePayload(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return dErrors.New(dErrors.CodeValidation, "missing command payload")
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "malformed command payload")
	}
	return nil
}

type recordEventPayload struct {
	VenueID           string `json:"venue_id"`
	AreaID            string `json:"area_id"`
	DeviceID          string `json:"device_id,omitempty"`
	Delta             int    `json:"delta"`
	FlowType          string `json:"flow_type,omitempty"`
	EventType         string `json:"event_type,omitempty"`
	OverrideConfirmed bool   `json:"override_confirmed,omitempty"`
}

func (s *Service) recordEvent(ctx context.Context, caller *models.User, ds *models.Dataset, raw json.RawMessage) (*Response, error) {
	var p recordEventPayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	if p.Delta == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "delta must be nonzero")
	}
	venueID, err := id.ParseVenueID(p.VenueID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid venue id")
	}
	areaID, err := id.ParseAreaID(p.AreaID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid area id")
	}
	var deviceID id.DeviceID
	if p.DeviceID != "" {
		if deviceID, err = id.ParseDeviceID(p.DeviceID); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid device id")
		}
	}
	if err := requireAssigned(caller, venueID); err != nil {
		return nil, err
	}
	venue := ds.VenueByID(venueID)
	if venue == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "venue not found")
	}

	eventType := id.EventTap
	if p.EventType != "" {
		if eventType, err = id.ParseEventType(p.EventType); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid event type")
		}
	}
	flowType := id.FlowIn
	if p.Delta < 0 {
		flowType = id.FlowOut
	}
	if p.FlowType != "" {
		flowType = id.FlowType(p.FlowType)
		if flowType != id.FlowIn && flowType != id.FlowOut {
			return nil, dErrors.New(dErrors.CodeValidation, "invalid flow type")
		}
	}

	var result *AdmissionResult
	if p.Delta > 0 {
		decision := s.decideAdmission(ds, venue, true)
		switch decision {
		case id.AdmissionBlock:
			return &Response{Admission: &AdmissionResult{Decision: decision, Reason: "VENUE_FULL"}}, nil
		case id.AdmissionRequireOverride:
			if !p.OverrideConfirmed {
				return &Response{Admission: &AdmissionResult{Decision: decision, Reason: "VENUE_FULL"}}, nil
			}
			result = &AdmissionResult{Decision: decision, Reason: "OVERRIDE_CONFIRMED"}
		case id.AdmissionWarn:
			result = &AdmissionResult{Decision: decision, Reason: "VENUE_FULL"}
		default:
			result = &AdmissionResult{Decision: decision}
		}
	}

	_, err = s.processor.RecordEvent(ctx, ds, ProcessorRequest{
		Delta:     p.Delta,
		FlowType:  flowType,
		EventType: eventType,
		VenueID:   venueID,
		AreaID:    areaID,
		DeviceID:  deviceID,
		UserID:    caller.ID,
	})
	if err != nil {
		return nil, err
	}
	return &Response{Admission: result}, nil
}

type recordScanPayload struct {
	VenueID      string    `json:"venue_id"`
	AreaID       string    `json:"area_id,omitempty"`
	DeviceID     string    `json:"device_id,omitempty"`
	FirstName    string    `json:"first_name,omitempty"`
	LastName     string    `json:"last_name,omitempty"`
	DateOfBirth  string    `json:"date_of_birth,omitempty"`
	Age          int       `json:"age,omitempty"`
	IDNumber     string    `json:"id_number,omitempty"`
	IssuingState string    `json:"issuing_state,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	// RecordEntry asks for an automatic +1 count event when the scan is
	// accepted. Capacity policy still applies to that entry.
	RecordEntry       bool `json:"record_entry,omitempty"`
	OverrideConfirmed bool `json:"override_confirmed,omitempty"`
}

func (s *Service) recordScan(ctx context.Context, caller *models.User, ds *models.Dataset, raw json.RawMessage) (*Response, error) {
	var p recordScanPayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	venueID, err := id.ParseVenueID(p.VenueID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid venue id")
	}
	if err := requireAssigned(caller, venueID); err != nil {
		return nil, err
	}
	venue := ds.VenueByID(venueID)
	if venue == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "venue not found")
	}

	// Entry ids are validated before the scan is persisted, so a malformed
	// payload cannot leave a half-applied command behind.
	var (
		areaID   id.AreaID
		deviceID id.DeviceID
	)
	if p.AreaID != "" {
		if areaID, err = id.ParseAreaID(p.AreaID); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid area id")
		}
	}
	if p.DeviceID != "" {
		if deviceID, err = id.ParseDeviceID(p.DeviceID); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid device id")
		}
	}

	patrons, err := s.store.ListPatrons(ctx, ds.Business.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "ban registry unreachable")
	}
	bans, err := s.store.ListPatronBans(ctx, ds.Business.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "ban registry unreachable")
	}

	now := requestcontext.Now(ctx)
	verdict := idcheck.Evaluate(idcheck.Document{
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		DateOfBirth:  p.DateOfBirth,
		Age:          p.Age,
		IDNumber:     p.IDNumber,
		IssuingState: p.IssuingState,
		ExpiresAt:    p.ExpiresAt,
	}, idcheck.Registry{Patrons: patrons, Bans: bans}, venueID, now)
	if s.metrics != nil {
		s.metrics.IncrementScanDecisions(string(verdict.Result))
	}

	scan := models.IdentityScanEvent{
		ID:           id.NewScanID(),
		BusinessID:   ds.Business.ID,
		VenueID:      venueID,
		UserID:       caller.ID,
		Result:       verdict.Result,
		DenialReason: verdict.DenialReason,
		Age:          p.Age,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		DateOfBirth:  p.DateOfBirth,
		IDNumber:     p.IDNumber,
		IssuingState: p.IssuingState,
		ClientDevice: requestcontext.UserAgent(ctx),
		ScannedAt:    now,
	}
	if !ds.Business.Settings.RetainScanPII {
		scan.StripPII()
	}
	if err := s.store.InsertScanEvent(ctx, scan); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConflict, "scan event not recorded")
	}
	ds.Scans = append([]models.IdentityScanEvent{scan}, ds.Scans...)

	s.emit(ctx, audit.Event{
		Kind:       audit.KindScanDecision,
		BusinessID: ds.Business.ID,
		VenueID:    venueID,
		UserID:     caller.ID,
		Detail:     string(verdict.Result) + " " + verdict.DenialReason,
		Timestamp:  now,
	})

	resp := &Response{Scan: &ScanOutcome{
		Result:       verdict.Result,
		DenialReason: verdict.DenialReason,
		Confidence:   verdict.Confidence,
	}}

	if verdict.Result == models.ScanAccepted && p.RecordEntry && p.AreaID != "" {
		decision := s.decideAdmission(ds, venue, true)
		resp.Admission = &AdmissionResult{Decision: decision}
		blocked := decision == id.AdmissionBlock ||
			(decision == id.AdmissionRequireOverride && !p.OverrideConfirmed)
		if blocked {
			resp.Admission.Reason = "VENUE_FULL"
			return resp, nil
		}
		if _, err := s.processor.RecordEvent(ctx, ds, ProcessorRequest{
			Delta:     1,
			FlowType:  id.FlowIn,
			EventType: id.EventScan,
			VenueID:   venueID,
			AreaID:    areaID,
			DeviceID:  deviceID,
			UserID:    caller.ID,
		}); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func (s *Service) decideAdmission(ds *models.Dataset, venue *models.Venue, isEntry bool) id.AdmissionDecision {
	decision := admission.Decide(ds.VenueOccupancy(venue.ID), admission.Rule{
		MaxCapacity: venue.Capacity,
		Mode:        venue.Enforcement,
	}, isEntry)
	if s.metrics != nil {
		s.metrics.IncrementAdmissionDecisions(string(decision))
	}
	return decision
}

type resetCountsPayload struct {
	Scope    string `json:"scope"`
	TargetID string `json:"target_id"`
}

func (s *Service) resetCounts(ctx context.Context, caller *models.User, ds *models.Dataset, raw json.RawMessage) (*Response, error) {
	var p resetCountsPayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	scope, err := id.ParseResetScope(p.Scope)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid reset scope")
	}

	var venueID id.VenueID
	switch scope {
	case id.ResetVenue:
		if venueID, err = id.ParseVenueID(p.TargetID); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid venue id")
		}
	case id.ResetArea:
		areaID, err := id.ParseAreaID(p.TargetID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid area id")
		}
		area := ds.AreaByID(areaID)
		if area == nil {
			return nil, dErrors.New(dErrors.CodeNotFound, "area not found")
		}
		venueID = area.VenueID
	}
	if err := requireAssigned(caller, venueID); err != nil {
		return nil, err
	}

	if err := s.processor.ResetCounts(ctx, ds, scope, p.TargetID, caller.ID); err != nil {
		return nil, err
	}
	return &Response{}, nil
}

type venuePayload struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Address     string `json:"address,omitempty"`
	City        string `json:"city,omitempty"`
	Region      string `json:"region,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	Capacity    *int   `json:"capacity,omitempty"`
	Enforcement string `json:"enforcement,omitempty"`
	Status      string `json:"status,omitempty"`
}

func (s *Service) addVenue(ctx context.Context, caller *models.User, ds *models.Dataset, raw json.RawMessage) (*Response, error) {
	if err := requireManager(caller); err != nil {
		return nil, err
	}
	var p venuePayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "venue name is required")
	}
	enforcement := id.EnforcementWarnOnly
	if p.Enforcement != "" {
		var err error
		if enforcement, err = id.ParseEnforcementMode(p.Enforcement); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid enforcement mode")
		}
	}
	now := requestcontext.Now(ctx)
	venue := models.Venue{
		ID:          id.NewVenueID(),
		BusinessID:  ds.Business.ID,
		Name:        p.Name,
		Address:     p.Address,
		City:        p.City,
		Region:      p.Region,
		PostalCode:  p.PostalCode,
		Enforcement: enforcement,
		Status:      models.VenueActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.Capacity != nil {
		venue.Capacity = *p.Capacity
	}
	if err := s.store.CreateVenue(ctx, venue); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConflict, "venue not created")
	}
	ds.Venues = append(ds.Venues, venue)

	// The creator is assigned to the new venue immediately so it does not
	// vanish from their own filtered view.
	caller.VenueIDs = append(caller.VenueIDs, venue.ID)
	if err := s.store.UpdateUser(ctx, *caller); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConflict, "creator assignment not persisted")
	}
	return &Response{}, nil
}

func (s *Service) updateVenue(ctx context.Context, caller *models.User, ds *models.Dataset, raw json.RawMessage) (*Response, error) {
	if err := requireManager(caller); err != nil {
		return nil, err
	}
	var p venuePayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	venueID, err := id.ParseVenueID(p.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid venue id")
	}
	if err := requireAssigned(caller, venueID); err != nil {
		return nil, err
	}
	venue := ds.VenueByID(venueID)
	if venue == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "venue not found")
	}

	if p.Name != "" {
		venue.Name = p.Name
	}
	if p.Address != "" {
		venue.Address = p.Address
	}
	if p.City != "" {
		venue.City = p.City
	}
	if p.Region != "" {
		venue.Region = p.Region
	}
	if p.PostalCode != "" {
		venue.PostalCode = p.PostalCode
	}
	if p.Capacity != nil {
		venue.Capacity = *p.Capacity
	}
	if p.Enforcement != "" {
		if venue.Enforcement, err = id.ParseEnforcementMode(p.Enforcement); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid enforcement mode")
		}
	}
	if p.Status != "" {
		venue.Status = models.VenueStatus(p.Status)
	}
	venue.UpdatedAt = requestcontext.Now(ctx)

	if err := s.store.UpdateVenue(ctx, *venue); err != nil {
		return nil, wrapStoreMutation(err, "venue not updated")
	}
	return &Response{}, nil
}

type deletePayload struct {
	ID string `json:"id"`
}

func (s *Service) deleteVenue(ctx context.Context, caller *models.User, ds *models.Dataset, raw json.RawMessage) (*Response, error) {
	if err := requireManager(caller); err != nil {
		return nil, err
	}
	var p deletePayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	venueID, err := id.ParseVenueID(p.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid venue id")
	}
	if err := requireAssigned(caller, venueID); err != nil {
		return nil, err
	}
	if err := s.store.DeleteVenue(ctx, venueID); err != nil {
		return nil, wrapStoreMutation(err, "venue not deleted")
	}

	removedAreas := make(map[id.AreaID]bool)
	areas := ds.Areas[:0]
	for _, a := range ds.Areas {
		if a.VenueID == venueID {
			removedAreas[a.ID] = true
			continue
		}
		areas = append(areas, a)
	}
	ds.Areas = areas
	devices := ds.Devices[:0]
	for _, d := range ds.Devices {
		if !removedAreas[d.AreaID] {
			devices = append(devices, d)
		}
	}
	ds.Devices = devices
	venues := ds.Venues[:0]
	for _, v := range ds.Venues {
		if v.ID != venueID {
			venues = append(venues, v)
		}
	}
	ds.Venues = venues
	return &Response{}, nil
}

type areaPayload struct {
	ID              string `json:"id,omitempty"`
	VenueID         string `json:"venue_id,omitempty"`
	Name            string `json:"name,omitempty"`
	DefaultCapacity *int   `json:"default_capacity,omitempty"`
	CountingMode    string `json:"counting_mode,omitempty"`
	Active          *bool  `json:"active,omitempty"`
}

func (s *Service) addArea(ctx context.Context, caller *models.User, ds *models.Dataset, raw json.RawMessage) (*Response, error) {
	if err := requireManager(caller); err != nil {
		return nil, err
	}
	var p areaPayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	venueID, err := id.ParseVenueID(p.VenueID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid venue id")
	}
	if err := requireAssigned(caller, venueID); err != nil {
		return nil, err
	}
	if ds.VenueByID(venueID) == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "venue not found")
	}
	if p.Name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "area name is required")
	}

	area := models.Area{
		ID:           id.NewAreaID(),
		VenueID:      venueID,
		Name:         p.Name,
		CountingMode: p.CountingMode,
		Active:       true,
	}
	if p.DefaultCapacity != nil {
		area.DefaultCapacity = *p.DefaultCapacity
	}
	if err := s.store.CreateArea(ctx, area); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConflict, "area not created")
	}
	// Seed the snapshot row now; the hydrator would self-heal it anyway.
	if _, err := s.store.EnsureSnapshot(ctx, area.ID); err != nil {
		s.logger.WarnContext(ctx, "snapshot seed failed", "area_id", area.ID, "error", err)
	}
	area.OccupancyAsOf = requestcontext.Now(ctx)
	ds.Areas = append(ds.Areas, area)
	return &Response{}, nil
}

func (s *Service) updateArea(ctx context.Context, caller *models.User, ds *models.Dataset, raw json.RawMessage) (*Response, error) {
	if err := requireManager(caller); err != nil {
		return nil, err
	}
	var p areaPayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	areaID, err := id.ParseAreaID(p.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid area id")
	}
	area := ds.AreaByID(areaID)
	if area == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "area not found")
	}
	if err := requireAssigned(caller, area.VenueID); err != nil {
		return nil, err
	}

	if p.Name != "" {
		area.Name = p.Name
	}
	if p.CountingMode != "" {
		area.CountingMode = p.CountingMode
	}
	if p.DefaultCapacity != nil {
		area.DefaultCapacity = *p.DefaultCapacity
	}
	if p.Active != nil {
		area.Active = *p.Active
	}
	if err := s.store.UpdateArea(ctx, *area); err != nil {
		return nil, wrapStoreMutation(err, "area not updated")
	}
	return &Response{}, nil
}

func (s *Service) deleteArea(ctx context.Context, caller *models.User, ds *models.Dataset, raw json.RawMessage) (*Response, error) {
	if err := requireManager(caller); err != nil {
		return nil, err
	}
	var p deletePayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	areaID, err := id.ParseAreaID(p.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid area id")
	}
	area := ds.AreaByID(areaID)
	if area == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "area not found")
	}
	if err := requireAssigned(caller, area.VenueID); err != nil {
		return nil, err
	}
	if err := s.store.DeleteArea(ctx, areaID); err != nil {
		return nil, wrapStoreMutation(err, "area not deleted")
	}

	areas := ds.Areas[:0]
	for _, a := range ds.Areas {
		if a.ID != areaID {
			areas = append(areas, a)
		}
	}
	ds.Areas = areas
	devices := ds.Devices[:0]
	for _, d := range ds.Devices {
		if d.AreaID != areaID {
			devices = append(devices, d)
		}
	}
	ds.Devices = devices
	return &Response{}, nil
}

type devicePayload struct {
	ID       string                `json:"id,omitempty"`
	AreaID   string                `json:"area_id,omitempty"`
	Name     string                `json:"name,omitempty"`
	FlowMode string                `json:"flow_mode,omitempty"`
	Buttons  []models.DeviceButton `json:"buttons,omitempty"`
	Active   *bool                 `json:"active,omitempty"`
}

func (s *Service) addDevice(ctx context.Context, caller *models.User, ds *models.Dataset, raw json.RawMessage) (*Response, error) {
	if err := requireManager(caller); err != nil {
		return nil, err
	}
	var p devicePayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	areaID, err := id.ParseAreaID(p.AreaID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid area id")
	}
	area := ds.AreaByID(areaID)
	if area == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "area not found")
	}
	if err := requireAssigned(caller, area.VenueID); err != nil {
		return nil, err
	}
	flowMode := id.FlowBidirectional
	if p.FlowMode != "" {
		if flowMode, err = id.ParseFlowMode(p.FlowMode); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid flow mode")
		}
	}

	device := models.Device{
		ID:       id.NewDeviceID(),
		AreaID:   areaID,
		Name:     p.Name,
		FlowMode: flowMode,
		Buttons:  p.Buttons,
		Active:   true,
	}
	if len(device.Buttons) == 0 {
		device.Buttons = models.DefaultButtons(flowMode)
	}
	if err := s.store.CreateDevice(ctx, device); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConflict, "device not created")
	}
	ds.Devices = models.MergeDevices(ds.Devices, []models.Device{device})
	return &Response{}, nil
}

func (s *Service) updateDevice(ctx context.Context, caller *models.User, ds *models.Dataset, raw json.RawMessage) (*Response, error) {
	if err := requireManager(caller); err != nil {
		return nil, err
	}
	var p devicePayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	deviceID, err := id.ParseDeviceID(p.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid device id")
	}
	device := ds.DeviceByID(deviceID)
	if device == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "device not found")
	}
	area := ds.AreaByID(device.AreaID)
	if area == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "area not found")
	}
	if err := requireAssigned(caller, area.VenueID); err != nil {
		return nil, err
	}

	if p.Name != "" {
		device.Name = p.Name
	}
	if p.FlowMode != "" {
		if device.FlowMode, err = id.ParseFlowMode(p.FlowMode); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid flow mode")
		}
	}
	if len(p.Buttons) > 0 {
		device.Buttons = p.Buttons
	}
	if p.Active != nil {
		device.Active = *p.Active
	}
	if p.AreaID != "" {
		newAreaID, err := id.ParseAreaID(p.AreaID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid area id")
		}
		newArea := ds.AreaByID(newAreaID)
		if newArea == nil {
			return nil, dErrors.New(dErrors.CodeNotFound, "area not found")
		}
		if err := requireAssigned(caller, newArea.VenueID); err != nil {
			return nil, err
		}
		device.AreaID = newAreaID
	}
	if err := s.store.UpdateDevice(ctx, *device); err != nil {
		return nil, wrapStoreMutation(err, "device not updated")
	}
	return &Response{}, nil
}

func (s *Service) deleteDevice(ctx context.Context, caller *models.User, ds *models.Dataset, raw json.RawMessage) (*Response, error) {
	if err := requireManager(caller); err != nil {
		return nil, err
	}
	var p deletePayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	deviceID, err := id.ParseDeviceID(p.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid device id")
	}
	device := ds.DeviceByID(deviceID)
	if device == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "device not found")
	}
	if area := ds.AreaByID(device.AreaID); area != nil {
		if err := requireAssigned(caller, area.VenueID); err != nil {
			return nil, err
		}
	}
	if err := s.store.DeleteDevice(ctx, deviceID); err != nil {
		return nil, wrapStoreMutation(err, "device not deleted")
	}

	devices := ds.Devices[:0]
	for _, d := range ds.Devices {
		if d.ID != deviceID {
			devices = append(devices, d)
		}
	}
	ds.Devices = devices
	return &Response{}, nil
}

type updateUserPayload struct {
	UserID    string   `json:"user_id"`
	Name      string   `json:"name,omitempty"`
	Email     string   `json:"email,omitempty"`
	Role      string   `json:"role,omitempty"`
	VenueIDs  []string `json:"venue_ids,omitempty"`
	AreaIDs   []string `json:"area_ids,omitempty"`
	DeviceIDs []string `json:"device_ids,omitempty"`
	Active    *bool    `json:"active,omitempty"`
}

func (s *Service) updateUser(ctx context.Context, caller *models.User, ds *models.Dataset, raw json.RawMessage) (*Response, error) {
	if err := requireManager(caller); err != nil {
		return nil, err
	}
	var p updateUserPayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	userID, err := id.ParseUserID(p.UserID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid user id")
	}
	target := ds.UserByID(userID)
	if target == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
	}

	if p.Name != "" {
		target.Name = p.Name
	}
	if p.Email != "" {
		target.Email = p.Email
		if target.Name == "" {
			first, last := email.DeriveNameFromEmail(p.Email)
			target.Name = first + " " + last
		}
	}
	if p.Role != "" {
		target.Role = models.Role(p.Role)
	}
	if p.Active != nil {
		target.Active = *p.Active
	}
	if p.VenueIDs != nil {
		if target.VenueIDs, err = parseVenueIDs(p.VenueIDs); err != nil {
			return nil, err
		}
	}
	if p.AreaIDs != nil {
		deduped := pstrings.DedupeAndTrim(p.AreaIDs)
		ids := make([]id.AreaID, 0, len(deduped))
		for _, v := range deduped {
			parsed, err := id.ParseAreaID(v)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid area id")
			}
			ids = append(ids, parsed)
		}
		target.AreaIDs = ids
	}
	if p.DeviceIDs != nil {
		deduped := pstrings.DedupeAndTrim(p.DeviceIDs)
		ids := make([]id.DeviceID, 0, len(deduped))
		for _, v := range deduped {
			parsed, err := id.ParseDeviceID(v)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid device id")
			}
			ids = append(ids, parsed)
		}
		target.DeviceIDs = ids
	}

	if err := s.store.UpdateUser(ctx, *target); err != nil {
		return nil, wrapStoreMutation(err, "user not updated")
	}
	return &Response{}, nil
}

type patronBanPayload struct {
	FirstName    string    `json:"first_name,omitempty"`
	LastName     string    `json:"last_name,omitempty"`
	DateOfBirth  string    `json:"date_of_birth,omitempty"`
	IDNumber     string    `json:"id_number,omitempty"`
	IssuingState string    `json:"issuing_state,omitempty"`
	Category     string    `json:"category"`
	AllLocations bool      `json:"all_locations,omitempty"`
	VenueIDs     []string  `json:"venue_ids,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

func (s *Service) addPatronBan(ctx context.Context, caller *models.User, ds *models.Dataset, raw json.RawMessage) (*Response, error) {
	if err := requireManager(caller); err != nil {
		return nil, err
	}
	var p patronBanPayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	if p.Category == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "ban category is required")
	}
	hasName := p.FirstName != "" && p.LastName != ""
	if !hasName && p.IDNumber == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "ban needs a name or a document number")
	}
	if !p.AllLocations && len(p.VenueIDs) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "ban needs venues or all_locations")
	}
	venueIDs, err := parseVenueIDs(p.VenueIDs)
	if err != nil {
		return nil, err
	}
	for _, v := range venueIDs {
		if err := requireAssigned(caller, v); err != nil {
			return nil, err
		}
	}

	patron := models.Patron{
		ID:           id.NewPatronID(),
		BusinessID:   ds.Business.ID,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		DateOfBirth:  p.DateOfBirth,
		IDNumber:     p.IDNumber,
		IssuingState: p.IssuingState,
	}
	if !ds.Business.Settings.RetainScanPII {
		// Keep digests for matching, drop the sensitive plaintext. Names
		// stay so staff can recognize the ban in a list.
		if p.IDNumber != "" {
			patron.IDDigest = idcheck.IDMatchKey(p.IDNumber, p.IssuingState)
		}
		if hasName {
			patron.NameDigest = idcheck.NameMatchKey(p.FirstName, p.LastName, p.DateOfBirth)
		}
		patron.DateOfBirth = ""
		patron.IDNumber = ""
		patron.IssuingState = ""
	}
	if err := s.store.CreatePatron(ctx, patron); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConflict, "patron not created")
	}

	now := requestcontext.Now(ctx)
	ban := models.PatronBan{
		ID:           id.NewBanID(),
		PatronID:     patron.ID,
		Category:     p.Category,
		AllLocations: p.AllLocations,
		VenueIDs:     venueIDs,
		Status:       id.BanActive,
		ExpiresAt:    p.ExpiresAt,
		CreatedAt:    now,
	}
	if err := s.store.CreatePatronBan(ctx, ban); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConflict, "patron ban not created")
	}

	s.emit(ctx, audit.Event{
		Kind:       audit.KindPatronBan,
		BusinessID: ds.Business.ID,
		UserID:     caller.ID,
		Detail:     p.Category,
		Timestamp:  now,
	})
	return &Response{}, nil
}

type staffBanPayload struct {
	UserID   string   `json:"user_id"`
	Scope    string   `json:"scope"`
	VenueIDs []string `json:"venue_ids,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

func (s *Service) applyStaffBan(ctx context.Context, caller *models.User, ds *models.Dataset, raw json.RawMessage) (*Response, error) {
	if err := requireManager(caller); err != nil {
		return nil, err
	}
	var p staffBanPayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	userID, err := id.ParseUserID(p.UserID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid user id")
	}
	scope, err := id.ParseBanScope(p.Scope)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid ban scope")
	}
	venueIDs, err := parseVenueIDs(p.VenueIDs)
	if err != nil {
		return nil, err
	}
	if scope == id.BanScopeVenue && len(venueIDs) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "venue-scoped ban needs venue ids")
	}
	for _, v := range venueIDs {
		if err := requireAssigned(caller, v); err != nil {
			return nil, err
		}
	}

	now := requestcontext.Now(ctx)
	ban := models.StaffBan{
		ID:         id.NewBanID(),
		BusinessID: ds.Business.ID,
		UserID:     userID,
		Scope:      scope,
		VenueIDs:   venueIDs,
		Status:     id.BanActive,
		Reason:     p.Reason,
		CreatedAt:  now,
	}
	if err := s.store.CreateStaffBan(ctx, ban); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConflict, "staff ban not created")
	}
	ds.StaffBans = append(ds.StaffBans, ban)

	// Cascade on a missing target is a silent no-op; a ban is not blocked by
	// a stale user record.
	if target := ds.UserByID(userID); target != nil {
		access.ApplyBan(&ban, target, ds)
		if err := s.store.UpdateUser(ctx, *target); err != nil {
			s.logger.WarnContext(ctx, "ban cascade persistence failed",
				"user_id", userID, "error", err)
		}
	}

	s.emit(ctx, audit.Event{
		Kind:       audit.KindStaffBan,
		BusinessID: ds.Business.ID,
		UserID:     userID,
		Detail:     string(scope),
		Timestamp:  now,
	})
	return &Response{}, nil
}

func parseVenueIDs(raw []string) ([]id.VenueID, error) {
	raw = pstrings.DedupeAndTrim(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]id.VenueID, 0, len(raw))
	for _, s := range raw {
		parsed, err := id.ParseVenueID(s)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid venue id")
		}
		out = append(out, parsed)
	}
	return out, nil
}

// wrapStoreMutation keeps not-found distinguishable from a rejected write.
func wrapStoreMutation(err error, message string) error {
	if dErrors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, message)
	}
	return dErrors.Wrap(err, dErrors.CodeConflict, message)
}
