package hal

import (
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/audiotab-dev/audiotab"
	"github.com/google/uuid"
)

// Calibration is the per-channel linear correction applied during the
// device read-loop, ahead of the Channel Mapper: corrected = raw*gain +
// offset. Defined on audiotab.Converter since applying it operates on a
// Frame's decoded samples.
type Calibration = audiotab.Calibration

// HardwareRecord is one persisted hardware endpoint entry, following the
// hardware config file schema: a user-assigned name (unique across the
// store), the driver and hardware family it belongs to, its declared
// streaming parameters, and whether it should be brought up automatically
// by the kernel's startup sequence.
type HardwareRecord struct {
	ID             string            `json:"registration_id"`
	DeviceID       string            `json:"device_id"`
	HardwareName   string            `json:"hardware_name"`
	DriverID       string            `json:"driver_id"`
	HardwareType   string            `json:"hardware_type"`
	Direction      string            `json:"direction"`
	UserName       string            `json:"user_name"`
	Enabled        bool              `json:"enabled"`
	Protocol       string            `json:"protocol,omitempty"`
	SampleRate     uint32            `json:"sample_rate"`
	Channels       int               `json:"channels"`
	ChannelMapping []string          `json:"channel_mapping,omitempty"`
	Calibration    Calibration       `json:"calibration"`
	MaxVoltage     float64           `json:"max_voltage,omitempty"`
	Notes          string            `json:"notes,omitempty"`
	Params         map[string]string `json:"params,omitempty"`
}

// hardwareFileVersion is written into every persisted hardware config
// file; readers currently accept any version since the schema has only
// grown optional fields.
const hardwareFileVersion = "1.0"

type hardwareFile struct {
	Version string           `json:"version"`
	Records []HardwareRecord `json:"registered_devices"`
}

// HardwareStore persists HardwareRecords to a flat JSON file, writing via
// a temp-file-then-rename sequence so readers never observe a partially
// written file. UserName is enforced unique within the store.
type HardwareStore struct {
	mu      sync.Mutex
	path    string
	records []HardwareRecord
}

// OpenHardwareStore loads path if it exists, or starts empty.
func OpenHardwareStore(path string) (*HardwareStore, error) {
	s := &HardwareStore{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, audiotab.WrapError("hal.OpenHardwareStore", err)
	}
	var f hardwareFile
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &f); err != nil {
		return nil, audiotab.WrapError("hal.OpenHardwareStore", err)
	}
	s.records = f.Records
	return s, nil
}

// List returns a copy of all stored records.
func (s *HardwareStore) List() []HardwareRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]HardwareRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Add appends a new record with a generated registration id and
// enabled=true, rejecting a duplicate UserName. The driverName and params
// arguments cover the common case (just enough to let the kernel's startup
// sequence instantiate a device); callers needing the rest of the record
// schema (hardware_type, calibration, channel_mapping, ...) should build a
// HardwareRecord directly and call AddRecord.
func (s *HardwareStore) Add(userName, driverName string, params map[string]string) (HardwareRecord, error) {
	return s.AddRecord(HardwareRecord{
		UserName: userName,
		DriverID: driverName,
		Enabled:  true,
		Params:   params,
	})
}

// AddRecord appends rec with a freshly generated registration id,
// rejecting a duplicate UserName.
func (s *HardwareStore) AddRecord(rec HardwareRecord) (HardwareRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.records {
		if r.UserName == rec.UserName {
			return HardwareRecord{}, audiotab.NewError("hal.HardwareStore.Add",
				audiotab.ErrCodeDuplicateUserName, "user_name already registered: "+rec.UserName)
		}
	}

	rec.ID = uuid.NewString()
	s.records = append(s.records, rec)
	if err := s.flushLocked(); err != nil {
		s.records = s.records[:len(s.records)-1]
		return HardwareRecord{}, err
	}
	return rec, nil
}

// Update replaces the record with id, rejecting a UserName change that
// collides with a different existing record.
func (s *HardwareStore) Update(id string, rec HardwareRecord) (HardwareRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, r := range s.records {
		if r.ID == id {
			idx = i
			continue
		}
		if r.UserName == rec.UserName {
			return HardwareRecord{}, audiotab.NewError("hal.HardwareStore.Update",
				audiotab.ErrCodeDuplicateUserName, "user_name already registered: "+rec.UserName)
		}
	}
	if idx == -1 {
		return HardwareRecord{}, audiotab.NewError("hal.HardwareStore.Update", audiotab.ErrCodeNotFound, "no such record: "+id)
	}

	prev := s.records[idx]
	rec.ID = id
	s.records[idx] = rec
	if err := s.flushLocked(); err != nil {
		s.records[idx] = prev
		return HardwareRecord{}, err
	}
	return rec, nil
}

// Get returns the record with id, or NotFound.
func (s *HardwareStore) Get(id string) (HardwareRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ID == id {
			return r, nil
		}
	}
	return HardwareRecord{}, audiotab.NewError("hal.HardwareStore.Get", audiotab.ErrCodeNotFound, "no such record: "+id)
}

// Remove deletes the record with the given id, if present.
func (s *HardwareStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, r := range s.records {
		if r.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return audiotab.NewError("hal.HardwareStore.Remove", audiotab.ErrCodeNotFound, "no such record: "+id)
	}
	removed := s.records[idx]
	s.records = append(s.records[:idx], s.records[idx+1:]...)
	if err := s.flushLocked(); err != nil {
		s.records = append(s.records, removed)
		return err
	}
	return nil
}

// flushLocked writes the current record set to a temp file in the same
// directory and renames it over the target path, so a crash mid-write
// never corrupts the existing file.
func (s *HardwareStore) flushLocked() error {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(hardwareFile{Version: hardwareFileVersion, Records: s.records}, "", "  ")
	if err != nil {
		return audiotab.WrapError("hal.HardwareStore.flush", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".hardware-*.json.tmp")
	if err != nil {
		return audiotab.WrapError("hal.HardwareStore.flush", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return audiotab.WrapError("hal.HardwareStore.flush", err)
	}
	if err := tmp.Close(); err != nil {
		return audiotab.WrapError("hal.HardwareStore.flush", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return audiotab.WrapError("hal.HardwareStore.flush", err)
	}
	return nil
}
