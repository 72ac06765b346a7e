package patient

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/blobstore"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/seq"
)

// -- Mock Repositories --

type mockPatientRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Patient
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{items: make(map[uuid.UUID]*Patient)}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.PatientID == p.PatientID {
			return errors.New("duplicate patient_id")
		}
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockPatientRepo) GetByPatientID(_ context.Context, patientID string) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.items {
		if p.PatientID == patientID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.items[p.ID]
	if !ok {
		return db.ErrNotFound
	}
	cp := *p
	cp.PatientID = existing.PatientID
	cp.UpdatedAt = time.Now()
	m.items[p.ID] = &cp
	return nil
}

func (m *mockPatientRepo) Discharge(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok || !p.IsAdmitted {
		return false, nil
	}
	p.IsAdmitted = false
	p.DischargeDatetime = &at
	return true, nil
}

func (m *mockPatientRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return db.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *mockPatientRepo) matches(p *Patient, q string) bool {
	q = strings.ToLower(q)
	for _, s := range []string{p.FirstName, p.LastName, p.FullName(), p.Phone, p.PatientID} {
		if strings.Contains(strings.ToLower(s), q) {
			return true
		}
	}
	return false
}

func (m *mockPatientRepo) sorted() []*Patient {
	var out []*Patient
	for _, p := range m.items {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PatientID < out[j].PatientID })
	return out
}

func (m *mockPatientRepo) List(_ context.Context, f ListFilter, limit, offset int) ([]*Patient, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Patient
	for _, p := range m.sorted() {
		if f.Query != "" && !m.matches(p, f.Query) {
			continue
		}
		if f.Admitted != nil && p.IsAdmitted != *f.Admitted {
			continue
		}
		if f.Gender != "" && p.Gender != f.Gender {
			continue
		}
		out = append(out, p)
	}
	total := len(out)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (m *mockPatientRepo) Search(_ context.Context, q string, limit int) ([]*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Patient
	for _, p := range m.sorted() {
		if m.matches(p, q) {
			out = append(out, p)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type mockDocumentRepo struct {
	mu      sync.Mutex
	items   map[uuid.UUID]*Document
	failNew bool
}

func newMockDocumentRepo() *mockDocumentRepo {
	return &mockDocumentRepo{items: make(map[uuid.UUID]*Document)}
}

func (m *mockDocumentRepo) Create(_ context.Context, d *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNew {
		return errors.New("insert failed")
	}
	d.ID = uuid.New()
	d.UploadedAt = time.Now()
	cp := *d
	m.items[d.ID] = &cp
	return nil
}

func (m *mockDocumentRepo) GetByID(_ context.Context, id uuid.UUID) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.items[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockDocumentRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Document
	for _, d := range m.items {
		if d.PatientID == patientID && !d.IsRemoved {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockDocumentRepo) MarkRemoved(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.items[id]
	if !ok {
		return db.ErrNotFound
	}
	d.IsRemoved = true
	return nil
}

type mockVitalsRepo struct {
	mu    sync.Mutex
	items []*Vitals
}

func (m *mockVitalsRepo) Create(_ context.Context, v *Vitals) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v.ID = uuid.New()
	v.RecordedAt = time.Now()
	cp := *v
	m.items = append(m.items, &cp)
	return nil
}

func (m *mockVitalsRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Vitals, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Vitals
	for _, v := range m.items {
		if v.PatientID == patientID {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

type countingEvents struct{ registered, discharged int }

func (e *countingEvents) PatientRegistered() { e.registered++ }
func (e *countingEvents) PatientDischarged() { e.discharged++ }

type fixture struct {
	svc      *Service
	patients *mockPatientRepo
	docs     *mockDocumentRepo
	blobs    *blobstore.MemoryStore
	events   *countingEvents
}

var jan2024 = time.Date(2024, time.January, 15, 10, 0, 0, 0, time.UTC)

func newFixture() *fixture {
	f := &fixture{
		patients: newMockPatientRepo(),
		docs:     newMockDocumentRepo(),
		blobs:    blobstore.NewMemoryStore(),
		events:   &countingEvents{},
	}
	f.svc = NewService(f.patients, f.docs, &mockVitalsRepo{}, db.NopTxManager{},
		seq.NewMemoryGenerator(time.UTC), f.blobs, f.events, zerolog.New(io.Discard))
	f.svc.now = func() time.Time { return jan2024 }
	return f
}

func intPtr(v int) *int { return &v }

func validRequest() PatientRequest {
	return PatientRequest{
		FirstName: "Rajesh",
		LastName:  "Kumar",
		Age:       intPtr(45),
		Gender:    "m",
		Phone:     "9876543210",
		Address:   "12 MG Road",
		City:      "Bengaluru",
	}
}

func (f *fixture) register(t *testing.T) *Patient {
	t.Helper()
	p, err := f.svc.Register(context.Background(), validRequest(), nil)
	require.NoError(t, err)
	return p
}

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	ae, ok := apperr.As(err)
	require.True(t, ok, "expected apperr.Error, got %v", err)
	return ae.Fields
}

// -- Tests --

func TestRegister_AssignsSequentialIDs(t *testing.T) {
	f := newFixture()
	first := f.register(t)
	second := f.register(t)

	assert.Equal(t, "P2024010001", first.PatientID)
	assert.Equal(t, "P2024010002", second.PatientID)
	assert.Equal(t, "M", first.Gender)
	assert.True(t, first.IsAdmitted)
	assert.Equal(t, jan2024, first.EntryDatetime)
	assert.Nil(t, first.DischargeDatetime)
	assert.Equal(t, 2, f.events.registered)
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Register(context.Background(), PatientRequest{
		Gender: "X", BloodGroup: "Z+", Email: "nope", Age: intPtr(200), HasSchemeCard: true,
	}, nil)
	fields := fieldsOf(t, err)
	for _, k := range []string{"first_name", "last_name", "age", "gender", "blood_group", "phone", "email", "address", "scheme_card_number"} {
		assert.Contains(t, fields, k)
	}
	assert.Empty(t, f.patients.items)
}

func TestRegister_NotAdmitted(t *testing.T) {
	f := newFixture()
	req := validRequest()
	req.IsAdmitted = new(bool)
	p, err := f.svc.Register(context.Background(), req, nil)
	require.NoError(t, err)
	assert.False(t, p.IsAdmitted)
	require.NotNil(t, p.DischargeDatetime)
}

func TestUpdate_KeepsPatientID(t *testing.T) {
	f := newFixture()
	p := f.register(t)

	req := validRequest()
	req.FirstName = "Ramesh"
	req.HasSchemeCard = true
	req.SchemeCardNumber = "AB-123"
	updated, err := f.svc.Update(context.Background(), p.ID, req)
	require.NoError(t, err)
	assert.Equal(t, "Ramesh", updated.FirstName)
	assert.Equal(t, p.PatientID, updated.PatientID)
	assert.Equal(t, "AB-123", updated.SchemeCardNumber)

	req.HasSchemeCard = false
	updated, err = f.svc.Update(context.Background(), p.ID, req)
	require.NoError(t, err)
	assert.Empty(t, updated.SchemeCardNumber)
}

func TestUpdate_NotFound(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Update(context.Background(), uuid.New(), validRequest())
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeNotFound, ae.Code)
}

func TestDischarge_Idempotent(t *testing.T) {
	f := newFixture()
	p := f.register(t)

	out, err := f.svc.Discharge(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, out.IsAdmitted)
	require.NotNil(t, out.DischargeDatetime)
	assert.Equal(t, jan2024, *out.DischargeDatetime)

	f.svc.now = func() time.Time { return jan2024.Add(48 * time.Hour) }
	again, err := f.svc.Discharge(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, again.IsAdmitted)
	assert.Equal(t, jan2024, *again.DischargeDatetime)
	assert.Equal(t, 1, f.events.discharged)
}

func TestUpdate_CannotReadmitDischargedPatient(t *testing.T) {
	f := newFixture()
	p := f.register(t)
	_, err := f.svc.Discharge(context.Background(), p.ID)
	require.NoError(t, err)

	f.svc.now = func() time.Time { return jan2024.Add(72 * time.Hour) }
	req := validRequest()
	admitted := true
	req.IsAdmitted = &admitted
	_, err = f.svc.Update(context.Background(), p.ID, req)
	assert.Contains(t, fieldsOf(t, err), "is_admitted")

	req.IsAdmitted = nil
	req.FirstName = "Ramesh"
	out, err := f.svc.Update(context.Background(), p.ID, req)
	require.NoError(t, err)
	assert.Equal(t, "Ramesh", out.FirstName)
	assert.False(t, out.IsAdmitted)
	require.NotNil(t, out.DischargeDatetime)
	assert.Equal(t, jan2024, *out.DischargeDatetime)
}

func TestUpdate_DoesNotDischarge(t *testing.T) {
	f := newFixture()
	p := f.register(t)

	req := validRequest()
	req.IsAdmitted = new(bool)
	_, err := f.svc.Update(context.Background(), p.ID, req)
	assert.Contains(t, fieldsOf(t, err), "is_admitted")

	stored, err := f.svc.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsAdmitted)
	assert.Nil(t, stored.DischargeDatetime)
	assert.Equal(t, 0, f.events.discharged)
}

func TestDischarge_NotFound(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Discharge(context.Background(), uuid.New())
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeNotFound, ae.Code)
}

func TestSearch(t *testing.T) {
	f := newFixture()
	for i := 0; i < 12; i++ {
		f.register(t)
	}
	req := validRequest()
	req.FirstName = "Priya"
	req.Phone = "9123456780"
	priya, err := f.svc.Register(context.Background(), req, nil)
	require.NoError(t, err)

	items, err := f.svc.Search(context.Background(), "PRIYA")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, priya.ID, items[0].ID)

	items, err = f.svc.Search(context.Background(), "kumar")
	require.NoError(t, err)
	assert.Len(t, items, SearchLimit)

	items, err = f.svc.Search(context.Background(), priya.PatientID)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	items, err = f.svc.Search(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestList_Filters(t *testing.T) {
	f := newFixture()
	a := f.register(t)
	f.register(t)
	_, err := f.svc.Discharge(context.Background(), a.ID)
	require.NoError(t, err)

	admitted := true
	items, total, err := f.svc.List(context.Background(), ListFilter{Admitted: &admitted}, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, items, 1)

	_, _, err = f.svc.List(context.Background(), ListFilter{Gender: "x"}, 20, 0)
	assert.Contains(t, fieldsOf(t, err), "gender")
}

func TestRecordVitals(t *testing.T) {
	f := newFixture()
	p := f.register(t)

	v, err := f.svc.RecordVitals(context.Background(), p.ID, &Vitals{
		Temperature:            decimal.NewNullDecimal(decimal.RequireFromString("98.64")),
		BloodPressureSystolic:  intPtr(120),
		BloodPressureDiastolic: intPtr(80),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, p.ID, v.PatientID)
	assert.Equal(t, "98.6", v.Temperature.Decimal.String())
	assert.Equal(t, "120/80", v.BloodPressure())

	_, err = f.svc.RecordVitals(context.Background(), p.ID, &Vitals{SpO2: intPtr(140)}, nil)
	assert.Contains(t, fieldsOf(t, err), "spo2")

	items, total, err := f.svc.ListVitals(context.Background(), p.ID, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, items, 1)
}

func TestUploadDocument(t *testing.T) {
	f := newFixture()
	p := f.register(t)

	d, err := f.svc.UploadDocument(context.Background(), p.ID, DocumentUpload{
		Title: "CBC", DocumentType: "lab_report", FileName: "cbc.pdf",
		ContentType: "application/pdf", Body: strings.NewReader("%PDF-1.4"),
	}, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(d.StorageKey, blobstore.PatientPrefix(p.PatientID)))
	assert.EqualValues(t, 8, d.Size)

	doc, rc, err := f.svc.OpenDocument(context.Background(), p.ID, d.ID)
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "%PDF-1.4", string(body))
	assert.Equal(t, "application/pdf", doc.ContentType)
}

func TestUploadDocument_Validation(t *testing.T) {
	f := newFixture()
	p := f.register(t)
	_, err := f.svc.UploadDocument(context.Background(), p.ID, DocumentUpload{
		DocumentType: "xray", FileName: "a.exe", ContentType: "application/x-msdownload", Body: strings.NewReader("x"),
	}, nil)
	fields := fieldsOf(t, err)
	assert.Contains(t, fields, "title")
	assert.Contains(t, fields, "document_type")
	assert.Contains(t, fields, "file")
	assert.Equal(t, 0, f.blobs.Len())
}

func TestUploadDocument_RowFailureRemovesBlob(t *testing.T) {
	f := newFixture()
	p := f.register(t)
	f.docs.failNew = true

	_, err := f.svc.UploadDocument(context.Background(), p.ID, DocumentUpload{
		Title: "Scan", FileName: "scan.png", ContentType: "image/png", Body: strings.NewReader("png"),
	}, nil)
	require.Error(t, err)
	assert.Equal(t, 0, f.blobs.Len())
}

func TestRemoveDocument(t *testing.T) {
	f := newFixture()
	p := f.register(t)
	other := f.register(t)
	d, err := f.svc.UploadDocument(context.Background(), p.ID, DocumentUpload{
		Title: "Rx", FileName: "rx.txt", ContentType: "text/plain", Body: strings.NewReader("rx"),
	}, nil)
	require.NoError(t, err)

	err = f.svc.RemoveDocument(context.Background(), other.ID, d.ID)
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeNotFound, ae.Code)

	require.NoError(t, f.svc.RemoveDocument(context.Background(), p.ID, d.ID))
	docs, err := f.svc.ListDocuments(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, _, err = f.svc.OpenDocument(context.Background(), p.ID, d.ID)
	assert.Error(t, err)
	assert.Equal(t, 1, f.blobs.Len())
}

func TestDelete_RemovesDocuments(t *testing.T) {
	f := newFixture()
	p := f.register(t)
	keep := f.register(t)
	for _, owner := range []*Patient{p, keep} {
		_, err := f.svc.UploadDocument(context.Background(), owner.ID, DocumentUpload{
			Title: "Doc", FileName: "d.txt", ContentType: "text/plain", Body: strings.NewReader("d"),
		}, nil)
		require.NoError(t, err)
	}

	require.NoError(t, f.svc.Delete(context.Background(), p.ID))
	assert.Equal(t, 1, f.blobs.Len())

	_, err := f.svc.Get(context.Background(), p.ID)
	assert.Error(t, err)
}
