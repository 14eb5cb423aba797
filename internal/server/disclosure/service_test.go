package disclosure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nav2424/rift-sub004/internal/common"
	"github.com/nav2424/rift-sub004/internal/cryptox"
	"github.com/nav2424/rift-sub004/internal/logging"
	"github.com/nav2424/rift-sub004/internal/server/ledger"
	"github.com/nav2424/rift-sub004/internal/server/models"
	"github.com/nav2424/rift-sub004/internal/server/repositories/events"
	"github.com/nav2424/rift-sub004/internal/server/watermark"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAssetRepo struct {
	byID map[string]*models.VaultAsset
}

func (r *fakeAssetRepo) Create(_ context.Context, asset *models.VaultAsset) error {
	r.byID[asset.ID] = asset
	return nil
}

func (r *fakeAssetRepo) GetByID(_ context.Context, id string) (*models.VaultAsset, error) {
	asset, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return asset, nil
}

type fakeTxnRepo struct {
	byID map[string]*models.TransactionParties
}

func (r *fakeTxnRepo) GetParties(_ context.Context, id string) (*models.TransactionParties, error) {
	parties, ok := r.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return parties, nil
}

func (r *fakeTxnRepo) Upsert(_ context.Context, parties *models.TransactionParties) error {
	r.byID[parties.TransactionID] = parties
	return nil
}

type fakeBlobs struct {
	objects map[string][]byte
}

func (b *fakeBlobs) PresignGet(_ context.Context, key string) (string, error) {
	return "https://blobs.test/" + key, nil
}

func (b *fakeBlobs) Fetch(_ context.Context, key string) ([]byte, error) {
	data, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("no object %s", key)
	}
	return data, nil
}

func (b *fakeBlobs) Upload(_ context.Context, key string, data []byte) error {
	b.objects[key] = data
	return nil
}

type fixture struct {
	svc    *Service
	events *events.InMemoryRepository
	assets *fakeAssetRepo
	txns   *fakeTxnRepo
	blobs  *fakeBlobs
	key    []byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	eventRepo := events.NewInMemoryRepository()
	assetRepo := &fakeAssetRepo{byID: map[string]*models.VaultAsset{}}
	txnRepo := &fakeTxnRepo{byID: map[string]*models.TransactionParties{}}
	blobs := &fakeBlobs{objects: map[string][]byte{}}
	key := cryptox.DeriveKey([]byte("master-pass"), []byte("salt"))

	svc := NewService(
		assetRepo, txnRepo, eventRepo,
		ledger.NewService(eventRepo, "test-salt", logger),
		NewTokens("token-secret", 5*time.Minute),
		blobs, key, logger,
	)
	return &fixture{svc: svc, events: eventRepo, assets: assetRepo, txns: txnRepo, blobs: blobs, key: key}
}

func (f *fixture) addTransaction(id, buyer, seller string) {
	f.txns.byID[id] = &models.TransactionParties{TransactionID: id, BuyerID: buyer, SellerID: seller}
}

func (f *fixture) addAsset(id, txn, assetType, sensitivity string) *models.VaultAsset {
	asset := &models.VaultAsset{
		ID:            id,
		TransactionID: txn,
		AssetType:     assetType,
		Sensitivity:   sensitivity,
		ContentHash:   "hash-" + id,
		StorageKey:    "assets/" + id,
	}
	f.assets.byID[id] = asset
	return asset
}

func buyerRequest(assetID, txn string) Request {
	return Request{
		AssetID:       assetID,
		TransactionID: txn,
		ViewerID:      "buyer-1",
		IPAddress:     "10.0.0.5",
		UserAgent:     "test-agent",
		SessionID:     "sess-1",
	}
}

func TestDiscloseUnknownAsset(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Disclose(context.Background(), buyerRequest("missing", "t1"))
	assert.ErrorIs(t, err, common.ErrAssetNotFound)
}

func TestDiscloseTransactionMismatch(t *testing.T) {
	f := newFixture(t)
	f.addTransaction("t1", "buyer-1", "seller-1")
	f.addAsset("a1", "t1", models.AssetTypeFile, models.SensitivityStandard)

	_, err := f.svc.Disclose(context.Background(), buyerRequest("a1", "other-txn"))
	assert.ErrorIs(t, err, common.ErrAssetNotFound)
}

func TestDiscloseUnauthorizedViewer(t *testing.T) {
	f := newFixture(t)
	f.addTransaction("t1", "buyer-1", "seller-1")
	f.addAsset("a1", "t1", models.AssetTypeFile, models.SensitivityStandard)

	req := buyerRequest("a1", "t1")
	req.ViewerID = "seller-1"
	_, err := f.svc.Disclose(context.Background(), req)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	// Denied attempts never reach the chain.
	list, err := f.events.ListByTransaction(context.Background(), "t1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDiscloseLogsViewBeforeGrant(t *testing.T) {
	f := newFixture(t)
	f.addTransaction("t1", "buyer-1", "seller-1")
	f.addAsset("a1", "t1", models.AssetTypeFile, models.SensitivityStandard)

	grant, err := f.svc.Disclose(context.Background(), buyerRequest("a1", "t1"))
	require.NoError(t, err)
	assert.NotEmpty(t, grant.Reference)
	assert.Equal(t, models.AssetTypeFile, grant.AssetType)
	assert.True(t, grant.ExpiresAt.After(time.Now()))

	list, err := f.events.ListByTransaction(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.EventView, list[0].EventType)
	assert.Equal(t, "hash-a1", list[0].AssetHash)
	assert.NotEqual(t, "10.0.0.5", list[0].IPHash)
}

func TestOneTimeRevealConsumed(t *testing.T) {
	f := newFixture(t)
	f.addTransaction("t1", "buyer-1", "seller-1")
	f.addAsset("a1", "t1", models.AssetTypeSecret, models.SensitivityReveal)
	ctx := context.Background()

	_, err := f.svc.Disclose(ctx, buyerRequest("a1", "t1"))
	require.NoError(t, err)

	_, err = f.svc.Disclose(ctx, buyerRequest("a1", "t1"))
	assert.ErrorIs(t, err, common.ErrAlreadyRevealed)

	list, err := f.events.ListByAsset(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.EventReveal, list[0].EventType)
}

// rendezvousEventsRepo holds the first n ListByAsset callers until all have
// finished scanning, forcing concurrent disclosures to decide on the same
// stale reveal state before either gets to append.
type rendezvousEventsRepo struct {
	*events.InMemoryRepository
	mu      sync.Mutex
	pending int
	release chan struct{}
}

func newRendezvousEventsRepo(n int) *rendezvousEventsRepo {
	return &rendezvousEventsRepo{
		InMemoryRepository: events.NewInMemoryRepository(),
		pending:            n,
		release:            make(chan struct{}),
	}
}

func (r *rendezvousEventsRepo) ListByAsset(ctx context.Context, assetID string) ([]*models.VaultEvent, error) {
	list, err := r.InMemoryRepository.ListByAsset(ctx, assetID)

	r.mu.Lock()
	if r.pending > 0 {
		r.pending--
		if r.pending == 0 {
			close(r.release)
		}
	}
	r.mu.Unlock()
	<-r.release

	return list, err
}

func TestConcurrentOneTimeRevealGrantsOnce(t *testing.T) {
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	eventRepo := newRendezvousEventsRepo(2)
	assetRepo := &fakeAssetRepo{byID: map[string]*models.VaultAsset{}}
	txnRepo := &fakeTxnRepo{byID: map[string]*models.TransactionParties{}}
	blobs := &fakeBlobs{objects: map[string][]byte{}}

	svc := NewService(
		assetRepo, txnRepo, eventRepo,
		ledger.NewService(eventRepo, "test-salt", logger),
		NewTokens("token-secret", 5*time.Minute),
		blobs, cryptox.DeriveKey([]byte("master-pass"), []byte("salt")), logger,
	)

	txnRepo.byID["t1"] = &models.TransactionParties{TransactionID: "t1", BuyerID: "buyer-1", SellerID: "seller-1"}
	assetRepo.byID["a1"] = &models.VaultAsset{
		ID:            "a1",
		TransactionID: "t1",
		AssetType:     models.AssetTypeSecret,
		Sensitivity:   models.SensitivityReveal,
		ContentHash:   "hash-a1",
	}
	ctx := context.Background()

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := svc.Disclose(ctx, buyerRequest("a1", "t1"))
			results <- err
		}()
	}

	var granted, refused int
	for i := 0; i < 2; i++ {
		switch err := <-results; {
		case err == nil:
			granted++
		case errors.Is(err, common.ErrAlreadyRevealed):
			refused++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, granted)
	assert.Equal(t, 1, refused)

	list, err := eventRepo.InMemoryRepository.ListByAsset(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.EventReveal, list[0].EventType)
}

func TestOverrideReopensReveal(t *testing.T) {
	f := newFixture(t)
	f.addTransaction("t1", "buyer-1", "seller-1")
	f.addAsset("a1", "t1", models.AssetTypeSecret, models.SensitivityReveal)
	ctx := context.Background()

	_, err := f.svc.Disclose(ctx, buyerRequest("a1", "t1"))
	require.NoError(t, err)
	_, err = f.svc.Disclose(ctx, buyerRequest("a1", "t1"))
	require.ErrorIs(t, err, common.ErrAlreadyRevealed)

	event, err := f.svc.RecordOverride(ctx, OverrideInput{
		AssetID: "a1",
		AdminID: "admin-9",
		Reason:  "buyer lost the first reveal",
	})
	require.NoError(t, err)
	assert.Equal(t, models.EventAdminOverride, event.EventType)
	assert.Equal(t, models.RoleAdmin, event.ActorRole)
	assert.Equal(t, "buyer lost the first reveal", event.Metadata["reason"])

	// Exactly one more reveal, then consumed again.
	_, err = f.svc.Disclose(ctx, buyerRequest("a1", "t1"))
	require.NoError(t, err)
	_, err = f.svc.Disclose(ctx, buyerRequest("a1", "t1"))
	assert.ErrorIs(t, err, common.ErrAlreadyRevealed)
}

func TestRegisterAssetSealsSecret(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	asset, err := f.svc.RegisterAsset(ctx, RegisterInput{
		TransactionID: "t1",
		AssetType:     models.AssetTypeSecret,
		Sensitivity:   models.SensitivityReveal,
		ContentHash:   "abc123",
		Secret:        "license-key-9000",
		ActorID:       "seller-1",
		ActorRole:     models.RoleSeller,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, asset.ID)
	assert.NotContains(t, string(asset.EncryptedPayload), "license-key-9000")

	plaintext, err := cryptox.Open(asset.EncryptedPayload, asset.PayloadNonce, f.key)
	require.NoError(t, err)
	assert.Equal(t, "license-key-9000", string(plaintext))

	list, err := f.events.ListByTransaction(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.EventUpload, list[0].EventType)
	assert.Equal(t, asset.ID, list[0].AssetID)
}

func discloseAndGetReference(t *testing.T, f *fixture, assetID, txn string) string {
	t.Helper()
	grant, err := f.svc.Disclose(context.Background(), buyerRequest(assetID, txn))
	require.NoError(t, err)
	return grant.Reference
}

func TestRedeemSecret(t *testing.T) {
	f := newFixture(t)
	f.addTransaction("t1", "buyer-1", "seller-1")
	ctx := context.Background()

	asset, err := f.svc.RegisterAsset(ctx, RegisterInput{
		TransactionID: "t1",
		AssetType:     models.AssetTypeSecret,
		Sensitivity:   models.SensitivityStandard,
		Secret:        "the-secret-value",
		ActorID:       "seller-1",
		ActorRole:     models.RoleSeller,
	})
	require.NoError(t, err)

	content, err := f.svc.Redeem(ctx, discloseAndGetReference(t, f, asset.ID, "t1"))
	require.NoError(t, err)
	assert.Equal(t, models.AssetTypeSecret, content.AssetType)
	assert.Equal(t, "the-secret-value", string(content.Body))
	assert.Empty(t, content.RedirectURL)
}

func TestRedeemFilePresigns(t *testing.T) {
	f := newFixture(t)
	f.addTransaction("t1", "buyer-1", "seller-1")
	f.addAsset("a1", "t1", models.AssetTypeFile, models.SensitivityStandard)

	content, err := f.svc.Redeem(context.Background(), discloseAndGetReference(t, f, "a1", "t1"))
	require.NoError(t, err)
	assert.Equal(t, "https://blobs.test/assets/a1", content.RedirectURL)
	assert.Empty(t, content.Body)
}

func testImagePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 200, 120))
	for i := range img.Pix {
		img.Pix[i] = 180
	}
	img.Set(3, 3, color.RGBA{10, 20, 30, 255})
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func TestRedeemImageServesWatermarkedCopy(t *testing.T) {
	f := newFixture(t)
	f.addTransaction("t1", "buyer-1", "seller-1")
	asset := f.addAsset("img1", "t1", models.AssetTypeImage, models.SensitivityWatermarked)
	f.blobs.objects[asset.StorageKey] = testImagePNG(t)

	content, err := f.svc.Redeem(context.Background(), discloseAndGetReference(t, f, "img1", "t1"))
	require.NoError(t, err)
	assert.NotEqual(t, "https://blobs.test/"+asset.StorageKey, content.RedirectURL)
	assert.Contains(t, content.RedirectURL, "rendered/")

	// The stored rendered copy carries the viewer marking.
	var rendered []byte
	for key, data := range f.blobs.objects {
		if key != asset.StorageKey {
			rendered = data
		}
	}
	require.NotNil(t, rendered)
	tag, ok := watermark.Extract(rendered)
	require.True(t, ok)
	assert.Contains(t, tag, "t1|buyer-1|")
}

func TestRedeemWatermarkFailureBlocksSensitive(t *testing.T) {
	f := newFixture(t)
	f.addTransaction("t1", "buyer-1", "seller-1")
	asset := f.addAsset("img1", "t1", models.AssetTypeImage, models.SensitivityWatermarked)
	f.blobs.objects[asset.StorageKey] = []byte("not a png at all")

	_, err := f.svc.Redeem(context.Background(), discloseAndGetReference(t, f, "img1", "t1"))
	assert.ErrorIs(t, err, common.ErrWatermarkApply)
}

func TestRedeemWatermarkFailureFallsBackForStandard(t *testing.T) {
	f := newFixture(t)
	f.addTransaction("t1", "buyer-1", "seller-1")
	asset := f.addAsset("img1", "t1", models.AssetTypeImage, models.SensitivityStandard)
	f.blobs.objects[asset.StorageKey] = []byte("not a png at all")

	content, err := f.svc.Redeem(context.Background(), discloseAndGetReference(t, f, "img1", "t1"))
	require.NoError(t, err)
	assert.Equal(t, "https://blobs.test/"+asset.StorageKey, content.RedirectURL)
}

func TestRedeemRejectsBadToken(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Redeem(context.Background(), "garbage.token.value")
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestRedeemRejectsExpiredToken(t *testing.T) {
	f := newFixture(t)
	f.addTransaction("t1", "buyer-1", "seller-1")
	f.addAsset("a1", "t1", models.AssetTypeFile, models.SensitivityStandard)

	expired := NewTokens("token-secret", time.Minute)
	reference, _, err := expired.Mint("a1", "buyer-1", "sess-1", time.Now().Add(-time.Hour))
	require.NoError(t, err)

	_, err = f.svc.Redeem(context.Background(), reference)
	assert.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestRedeemRejectsForeignSignature(t *testing.T) {
	f := newFixture(t)
	other := NewTokens("a-different-secret", time.Minute)
	reference, _, err := other.Mint("a1", "buyer-1", "sess-1", time.Now())
	require.NoError(t, err)

	_, err = f.svc.Redeem(context.Background(), reference)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestRevealStateScansLedger(t *testing.T) {
	f := newFixture(t)
	f.addTransaction("t1", "buyer-1", "seller-1")
	f.addAsset("a1", "t1", models.AssetTypeSecret, models.SensitivityReveal)
	ctx := context.Background()

	state, err := f.svc.revealState(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, state.Allowed())
	assert.Equal(t, RevealState{}, state)

	_, err = f.svc.Disclose(ctx, buyerRequest("a1", "t1"))
	require.NoError(t, err)

	state, err = f.svc.revealState(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, RevealState{Reveals: 1, Overrides: 0}, state)
	assert.False(t, state.Allowed())
}
