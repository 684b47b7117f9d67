package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	valdclient "github.com/apexlab/apex-backend/internal/clients/vald"
	types "github.com/apexlab/apex-backend/internal/domain"
	"github.com/apexlab/apex-backend/internal/platform/errs"
)

// fakeValdClient scripts the external API per test. Call counters catch the
// duplicate-creation regressions this service exists to prevent.
type fakeValdClient struct {
	mu sync.Mutex

	profilesBySyncID map[string]*valdclient.Profile
	profilesByEmail  map[string]*valdclient.Profile
	profilesByID     map[string]*valdclient.Profile

	createErr      error
	syncErr        error
	emailErr       error
	assignOnCreate bool

	createCalls int
	syncCalls   int
	emailCalls  int
	updateCalls int
}

func newFakeValdClient() *fakeValdClient {
	return &fakeValdClient{
		profilesBySyncID: map[string]*valdclient.Profile{},
		profilesByEmail:  map[string]*valdclient.Profile{},
		profilesByID:     map[string]*valdclient.Profile{},
	}
}

func (f *fakeValdClient) CreateProfile(_ context.Context, req valdclient.CreateProfileRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return f.createErr
	}
	if f.assignOnCreate {
		p := &valdclient.Profile{
			ProfileID:  "vp-" + req.SyncID,
			SyncID:     req.SyncID,
			GivenName:  req.GivenName,
			FamilyName: req.FamilyName,
			ExternalID: req.ExternalID,
			Email:      req.Email,
		}
		f.profilesBySyncID[req.SyncID] = p
		f.profilesByID[p.ProfileID] = p
	}
	return nil
}

func (f *fakeValdClient) GetProfileBySyncID(_ context.Context, syncID string) (*valdclient.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncCalls++
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	return f.profilesBySyncID[syncID], nil
}

func (f *fakeValdClient) GetProfileByID(_ context.Context, profileID string) (*valdclient.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profilesByID[profileID], nil
}

func (f *fakeValdClient) UpdateProfileEmail(_ context.Context, profileID string, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if p, ok := f.profilesByID[profileID]; ok {
		p.Email = email
	}
	return nil
}

func (f *fakeValdClient) SearchByEmail(_ context.Context, email string) (*valdclient.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emailCalls++
	if f.emailErr != nil {
		return nil, f.emailErr
	}
	return f.profilesByEmail[email], nil
}

func (f *fakeValdClient) SearchByName(_ context.Context, _ string, _ string) ([]valdclient.Profile, error) {
	return nil, nil
}

func newLinkService(t *testing.T, db *gorm.DB, client valdclient.Client) (ProfileLinkService, testRepos) {
	t.Helper()
	r := newTestRepos(t, db)
	svc := NewProfileLinkService(db, newTestLogger(t), ProfileLinkConfig{
		CreatePollDelay: time.Millisecond,
	}, client, r.Athlete, r.Queue)
	return svc, r
}

func loadAthlete(t *testing.T, db *gorm.DB, id uuid.UUID) *types.Athlete {
	t.Helper()
	var a types.Athlete
	if err := db.Where("id = ?", id).First(&a).Error; err != nil {
		t.Fatalf("load athlete: %v", err)
	}
	return &a
}

func TestResolveAlreadyLinkedMakesNoExternalCalls(t *testing.T) {
	db := newTestDB(t)
	fake := newFakeValdClient()
	svc, _ := newLinkService(t, db, fake)

	profileID := "vp-existing"
	athlete := seedAthlete(t, db, func(a *types.Athlete) {
		a.ValdProfileID = &profileID
	})

	res, err := svc.Resolve(context.Background(), athlete.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Outcome != OutcomeAlreadyLinked {
		t.Fatalf("outcome: want=%q got=%q", OutcomeAlreadyLinked, res.Outcome)
	}
	if res.ProfileID != profileID {
		t.Fatalf("profile id: want=%q got=%q", profileID, res.ProfileID)
	}
	if fake.createCalls+fake.syncCalls+fake.emailCalls != 0 {
		t.Fatalf("expected zero external calls, got create=%d sync=%d email=%d",
			fake.createCalls, fake.syncCalls, fake.emailCalls)
	}
}

func TestResolveLinksExistingProfileByEmail(t *testing.T) {
	db := newTestDB(t)
	fake := newFakeValdClient()
	existing := &valdclient.Profile{
		ProfileID:  "vp-42",
		SyncID:     "sync-42",
		ExternalID: "ext-42",
		Email:      "jordan.reyes@example.com",
	}
	fake.profilesByEmail[existing.Email] = existing
	fake.profilesByID[existing.ProfileID] = existing
	svc, _ := newLinkService(t, db, fake)

	athlete := seedAthlete(t, db, nil)

	res, err := svc.Resolve(context.Background(), athlete.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Outcome != OutcomeLinkedExisting {
		t.Fatalf("outcome: want=%q got=%q", OutcomeLinkedExisting, res.Outcome)
	}
	if fake.createCalls != 0 {
		t.Fatalf("email match must never create a profile, createCalls=%d", fake.createCalls)
	}

	stored := loadAthlete(t, db, athlete.ID)
	if stored.ValdProfileID == nil || *stored.ValdProfileID != "vp-42" {
		t.Fatalf("stored profile id: want=vp-42 got=%v", stored.ValdProfileID)
	}
	if stored.ValdSyncID == nil || *stored.ValdSyncID != "sync-42" {
		t.Fatalf("stored sync id: want=sync-42 got=%v", stored.ValdSyncID)
	}
}

func TestResolveCreatesProfileAndResolvesID(t *testing.T) {
	db := newTestDB(t)
	fake := newFakeValdClient()
	fake.assignOnCreate = true
	svc, _ := newLinkService(t, db, fake)

	athlete := seedAthlete(t, db, nil)

	res, err := svc.Resolve(context.Background(), athlete.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Outcome != OutcomeCreated {
		t.Fatalf("outcome: want=%q got=%q", OutcomeCreated, res.Outcome)
	}
	if fake.createCalls != 1 {
		t.Fatalf("create calls: want=1 got=%d", fake.createCalls)
	}

	stored := loadAthlete(t, db, athlete.ID)
	if stored.ValdProfileID == nil || *stored.ValdProfileID == "" {
		t.Fatalf("profile id not stored")
	}
	if stored.ValdSyncID == nil || *stored.ValdSyncID == "" {
		t.Fatalf("sync id not stored")
	}
}

func TestResolveCreatePendingEnqueuesAndStoresSyncID(t *testing.T) {
	db := newTestDB(t)
	fake := newFakeValdClient() // id never assigned
	svc, r := newLinkService(t, db, fake)

	athlete := seedAthlete(t, db, nil)

	res, err := svc.Resolve(context.Background(), athlete.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Outcome != OutcomeCreatedPending {
		t.Fatalf("outcome: want=%q got=%q", OutcomeCreatedPending, res.Outcome)
	}

	stored := loadAthlete(t, db, athlete.ID)
	if stored.ValdProfileID != nil {
		t.Fatalf("profile id must stay empty, got %v", *stored.ValdProfileID)
	}
	if stored.ValdSyncID == nil || *stored.ValdSyncID == "" {
		t.Fatalf("sync id not persisted")
	}

	items, err := r.Queue.ListRecent(dbc(t), 10)
	if err != nil {
		t.Fatalf("list queue: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("queue items: want=1 got=%d", len(items))
	}
	if items[0].Status != types.QueueStatusPending {
		t.Fatalf("queue status: want=pending got=%q", items[0].Status)
	}
}

func TestResolveIdempotentForPendingSync(t *testing.T) {
	db := newTestDB(t)
	fake := newFakeValdClient()
	svc, _ := newLinkService(t, db, fake)

	syncID := "sync-pending"
	athlete := seedAthlete(t, db, func(a *types.Athlete) {
		a.ValdSyncID = &syncID
	})

	// Id still unassigned: repeated resolves poll but never create.
	for i := 0; i < 3; i++ {
		res, err := svc.Resolve(context.Background(), athlete.ID)
		if err != nil {
			t.Fatalf("Resolve run %d: %v", i, err)
		}
		if res.Outcome != OutcomePendingSync {
			t.Fatalf("outcome: want=%q got=%q", OutcomePendingSync, res.Outcome)
		}
	}
	if fake.createCalls != 0 {
		t.Fatalf("pending sync must never create, createCalls=%d", fake.createCalls)
	}
	if fake.syncCalls != 3 {
		t.Fatalf("sync polls: want=3 got=%d", fake.syncCalls)
	}
}

func TestResolvePendingSyncResolvesWhenIDAssigned(t *testing.T) {
	db := newTestDB(t)
	fake := newFakeValdClient()
	syncID := "sync-assigned"
	fake.profilesBySyncID[syncID] = &valdclient.Profile{ProfileID: "vp-99", SyncID: syncID}
	svc, _ := newLinkService(t, db, fake)

	athlete := seedAthlete(t, db, func(a *types.Athlete) {
		a.ValdSyncID = &syncID
	})

	res, err := svc.Resolve(context.Background(), athlete.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Outcome != OutcomeResolvedPendingSync {
		t.Fatalf("outcome: want=%q got=%q", OutcomeResolvedPendingSync, res.Outcome)
	}

	stored := loadAthlete(t, db, athlete.ID)
	if stored.ValdProfileID == nil || *stored.ValdProfileID != "vp-99" {
		t.Fatalf("stored profile id: want=vp-99 got=%v", stored.ValdProfileID)
	}
}

func TestResolveBlockedByInFlightQueueItem(t *testing.T) {
	db := newTestDB(t)
	fake := newFakeValdClient()
	svc, r := newLinkService(t, db, fake)

	athlete := seedAthlete(t, db, nil)
	if _, err := r.Queue.EnqueueIfAbsent(dbc(t), athlete.ID, types.QueueStatusPending, nil); err != nil {
		t.Fatalf("seed queue item: %v", err)
	}

	_, err := svc.Resolve(context.Background(), athlete.ID)
	if !errors.Is(err, errs.ErrAlreadyQueued) {
		t.Fatalf("want ErrAlreadyQueued, got %v", err)
	}
	if fake.createCalls != 0 {
		t.Fatalf("guard must prevent creation, createCalls=%d", fake.createCalls)
	}
}

func TestResolveDegradesToQueueOnExternalFailure(t *testing.T) {
	db := newTestDB(t)
	fake := newFakeValdClient()
	fake.emailErr = fmt.Errorf("vald http 503: unavailable")
	svc, r := newLinkService(t, db, fake)

	athlete := seedAthlete(t, db, nil)

	res, err := svc.Resolve(context.Background(), athlete.ID)
	if err != nil {
		t.Fatalf("Resolve must degrade, got error: %v", err)
	}
	if res.Outcome != OutcomeEnqueued {
		t.Fatalf("outcome: want=%q got=%q", OutcomeEnqueued, res.Outcome)
	}

	items, err := r.Queue.ListRecent(dbc(t), 10)
	if err != nil {
		t.Fatalf("list queue: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("queue items: want=1 got=%d", len(items))
	}
	if items[0].Status != types.QueueStatusFailed {
		t.Fatalf("queue status: want=failed got=%q", items[0].Status)
	}
	if items[0].ErrorMessage == nil || *items[0].ErrorMessage == "" {
		t.Fatalf("error message not recorded")
	}
}

func TestResolveMissingBirthDateIsInvalid(t *testing.T) {
	db := newTestDB(t)
	fake := newFakeValdClient()
	svc, _ := newLinkService(t, db, fake)

	athlete := seedAthlete(t, db, func(a *types.Athlete) {
		a.BirthDate = nil
		a.Email = ""
	})

	_, err := svc.Resolve(context.Background(), athlete.ID)
	if !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("want ErrInvalidArgument, got %v", err)
	}
	if fake.createCalls != 0 {
		t.Fatalf("invalid athlete must not reach creation, createCalls=%d", fake.createCalls)
	}
}

func TestLinkExistingBackfillsMissingEmail(t *testing.T) {
	db := newTestDB(t)
	fake := newFakeValdClient()
	fake.profilesByID["vp-7"] = &valdclient.Profile{ProfileID: "vp-7", SyncID: "s7", ExternalID: "e7"}
	svc, _ := newLinkService(t, db, fake)

	athlete := seedAthlete(t, db, nil)

	if err := svc.LinkExisting(context.Background(), athlete.ID, "vp-7"); err != nil {
		t.Fatalf("LinkExisting: %v", err)
	}

	stored := loadAthlete(t, db, athlete.ID)
	if stored.ValdProfileID == nil || *stored.ValdProfileID != "vp-7" {
		t.Fatalf("stored profile id: want=vp-7 got=%v", stored.ValdProfileID)
	}
	if fake.updateCalls != 1 {
		t.Fatalf("email backfill calls: want=1 got=%d", fake.updateCalls)
	}
	if got := fake.profilesByID["vp-7"].Email; got != athlete.Email {
		t.Fatalf("backfilled email: want=%q got=%q", athlete.Email, got)
	}
}

func TestLinkExistingUnknownProfile(t *testing.T) {
	db := newTestDB(t)
	svc, _ := newLinkService(t, db, newFakeValdClient())

	athlete := seedAthlete(t, db, nil)

	err := svc.LinkExisting(context.Background(), athlete.ID, "vp-missing")
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
