package repository_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/tradedocs/constants"
	"github.com/joseph-ayodele/tradedocs/internal/common"
	"github.com/joseph-ayodele/tradedocs/internal/entity"
	"github.com/joseph-ayodele/tradedocs/internal/repository"
	"github.com/joseph-ayodele/tradedocs/internal/repository/repotest"
)

func strp(s string) *string { return &s }

func TestDocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	st := repotest.NewStore(t)
	owner := uuid.New()

	doc, err := st.Documents.Create(ctx, &entity.Document{
		DocType:  constants.DocTypeInvoice,
		OwnerID:  owner,
		Metadata: entity.Metadata{HSCode: strp("8501")},
	})
	require.NoError(t, err)
	assert.Equal(t, constants.DocumentStatusUploaded, doc.Status)

	got, err := st.Documents.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, owner, got.OwnerID)
	v, ok := got.Metadata.Get("hs_code")
	assert.True(t, ok)
	assert.Equal(t, "8501", v)
	assert.Nil(t, got.LastValidation)

	require.NoError(t, st.Documents.UpdateMetadata(ctx, doc.ID, entity.Metadata{Currency: strp("USD")}))
	report := &entity.ValidationReport{MissingFiles: []string{}, MissingTypes: []constants.DocType{}, Message: "ok"}
	require.NoError(t, st.Documents.UpdateLastValidation(ctx, doc.ID, report))
	require.NoError(t, st.Documents.UpdateStatus(ctx, doc.ID, constants.DocumentStatusApproved))

	got, err = st.Documents.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	_, ok = got.Metadata.Get("hs_code")
	assert.False(t, ok)
	cur, _ := got.Metadata.Get("currency")
	assert.Equal(t, "USD", cur)
	require.NotNil(t, got.LastValidation)
	assert.Equal(t, "ok", got.LastValidation.Message)
	assert.Equal(t, constants.DocumentStatusApproved, got.Status)
}

func TestDocumentNotFound(t *testing.T) {
	ctx := context.Background()
	st := repotest.NewStore(t)

	_, err := st.Documents.GetByID(ctx, uuid.New())
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNotFound))

	err = st.Documents.UpdateStatus(ctx, uuid.New(), constants.DocumentStatusPending)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestListByOwnerAndType(t *testing.T) {
	ctx := context.Background()
	st := repotest.NewStore(t)
	owner := uuid.New()

	mk := func(owner uuid.UUID, dt constants.DocType) *entity.Document {
		d, err := st.Documents.Create(ctx, &entity.Document{DocType: dt, OwnerID: owner})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
		return d
	}
	first := mk(owner, constants.DocTypePackingList)
	second := mk(owner, constants.DocTypePackingList)
	self := mk(owner, constants.DocTypePackingList)
	mk(owner, constants.DocTypeInvoice)
	mk(uuid.New(), constants.DocTypePackingList)

	docs, err := st.Documents.ListByOwnerAndType(ctx, owner, constants.DocTypePackingList, self.ID)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, first.ID, docs[0].ID)
	assert.Equal(t, second.ID, docs[1].ID)
}

func TestCountByStatus(t *testing.T) {
	ctx := context.Background()
	st := repotest.NewStore(t)
	a, b := uuid.New(), uuid.New()

	for _, owner := range []uuid.UUID{a, a, b} {
		_, err := st.Documents.Create(ctx, &entity.Document{DocType: constants.DocTypeInvoice, OwnerID: owner})
		require.NoError(t, err)
	}
	d, err := st.Documents.Create(ctx, &entity.Document{DocType: constants.DocTypeInvoice, OwnerID: a})
	require.NoError(t, err)
	require.NoError(t, st.Documents.UpdateStatus(ctx, d.ID, constants.DocumentStatusRejected))

	all, err := st.Documents.CountByStatus(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, all[constants.DocumentStatusUploaded])
	assert.Equal(t, 1, all[constants.DocumentStatusRejected])
	assert.Equal(t, 0, all[constants.DocumentStatusApproved])

	mine, err := st.Documents.CountByStatus(ctx, &a)
	require.NoError(t, err)
	assert.Equal(t, 2, mine[constants.DocumentStatusUploaded])
	assert.Equal(t, 1, mine[constants.DocumentStatusRejected])
}

func TestDocumentFileTransitions(t *testing.T) {
	ctx := context.Background()
	st := repotest.NewStore(t)

	doc, err := st.Documents.Create(ctx, &entity.Document{DocType: constants.DocTypeInvoice, OwnerID: uuid.New()})
	require.NoError(t, err)
	f, err := st.Files.Create(ctx, &entity.DocumentFile{DocumentID: doc.ID, FieldName: "invoice_file", FileRef: "/tmp/x.pdf"})
	require.NoError(t, err)
	assert.Equal(t, constants.ExtractionPending, f.Status)

	_, err = st.Files.Create(ctx, &entity.DocumentFile{DocumentID: doc.ID, FieldName: "invoice_file", FileRef: "/tmp/y.pdf"})
	assert.Error(t, err, "one file per field")

	require.NoError(t, st.Files.FinishFailure(ctx, f.ID, "boom"))
	got, err := st.Files.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.ExtractionFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "boom", *got.ErrorMessage)

	require.NoError(t, st.Files.MarkRunning(ctx, f.ID))
	long := strings.Repeat("é", repository.MaxExtractedTextRunes+10)
	require.NoError(t, st.Files.FinishSuccess(ctx, f.ID, long))

	got, parent, err := st.Files.GetWithDocument(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, parent.ID)
	assert.Equal(t, constants.ExtractionDone, got.Status)
	assert.Nil(t, got.ErrorMessage)
	require.NotNil(t, got.ExtractedText)
	assert.Equal(t, repository.MaxExtractedTextRunes, len([]rune(*got.ExtractedText)))

	files, err := st.Files.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, files, 1)

	_, _, err = st.Files.GetWithDocument(ctx, uuid.New())
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestValidationHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	st := repotest.NewStore(t)
	doc, err := st.Documents.Create(ctx, &entity.Document{DocType: constants.DocTypeInvoice, OwnerID: uuid.New()})
	require.NoError(t, err)
	actor := uuid.New()

	base := time.Now().UTC().Add(-time.Hour)
	for i, msg := range []string{"first", "second"} {
		_, err := st.Validations.Create(ctx, &entity.ValidationResult{
			DocumentID: doc.ID,
			Report:     entity.ValidationReport{Message: msg},
			RunBy:      &actor,
			Trigger:    constants.TriggerManual,
			RunAt:      base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	_, err = st.Validations.Create(ctx, &entity.ValidationResult{
		DocumentID: doc.ID,
		Report:     entity.ValidationReport{Message: "auto"},
		Trigger:    constants.TriggerAuto,
		RunAt:      base.Add(time.Hour),
	})
	require.NoError(t, err)

	hist, err := st.Validations.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, "auto", hist[0].Report.Message)
	assert.Nil(t, hist[0].RunBy)
	assert.Equal(t, "second", hist[1].Report.Message)
	require.NotNil(t, hist[1].RunBy)
	assert.Equal(t, actor, *hist[1].RunBy)
	assert.Equal(t, constants.TriggerManual, hist[2].Trigger)
}

func TestAuditLogs(t *testing.T) {
	ctx := context.Background()
	st := repotest.NewStore(t)
	actor := uuid.New()

	_, err := st.AuditLogs.Append(ctx, &entity.AuditLogEntry{ActorID: &actor, Action: constants.AuditUploadedDocument, Details: map[string]any{"doc_id": "x"}})
	require.NoError(t, err)
	_, err = st.AuditLogs.Append(ctx, &entity.AuditLogEntry{Action: constants.AuditExtractionFailed})
	require.NoError(t, err)

	logs, err := st.AuditLogs.ListByAction(ctx, constants.AuditUploadedDocument)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.NotNil(t, logs[0].ActorID)
	assert.Equal(t, actor, *logs[0].ActorID)
	assert.Equal(t, "x", logs[0].Details["doc_id"])
}

func TestCurrencyRateUpsert(t *testing.T) {
	ctx := context.Background()
	st := repotest.NewStore(t)

	got, err := st.CurrencyRate.Get(ctx, "usd")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, st.CurrencyRate.Upsert(ctx, "usd", decimal.RequireFromString("3.6725")))
	require.NoError(t, st.CurrencyRate.Upsert(ctx, "USD", decimal.RequireFromString("3.67")))

	got, err = st.CurrencyRate.Get(ctx, "USD")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "USD", got.Currency)
	assert.True(t, decimal.RequireFromString("3.67").Equal(got.RateToAED))
}

func TestInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	st := repotest.NewStore(t)
	owner := uuid.New()
	boom := errors.New("boom")

	err := st.InTx(ctx, func(tx *repository.Store) error {
		if _, err := tx.Documents.Create(ctx, &entity.Document{DocType: constants.DocTypeInvoice, OwnerID: owner}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	counts, err := st.Documents.CountByStatus(ctx, &owner)
	require.NoError(t, err)
	assert.Equal(t, 0, counts[constants.DocumentStatusUploaded])
}

func TestMigrateIsIdempotent(t *testing.T) {
	st := repotest.NewStore(t)
	assert.NoError(t, repository.Migrate(st.Client, repotest.Logger()))
}

func TestListByOwnerNewestFirst(t *testing.T) {
	ctx := context.Background()
	st := repotest.NewStore(t)
	owner := uuid.New()

	mk := func(owner uuid.UUID) *entity.Document {
		d, err := st.Documents.Create(ctx, &entity.Document{DocType: constants.DocTypeInvoice, OwnerID: owner})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
		return d
	}
	older := mk(owner)
	other := mk(uuid.New())
	newer := mk(owner)
	require.NoError(t, st.Documents.UpdateStatus(ctx, older.ID, constants.DocumentStatusRejected))

	mine, err := st.Documents.ListByOwner(ctx, &owner, "")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, newer.ID, mine[0].ID)
	assert.Equal(t, older.ID, mine[1].ID)

	all, err := st.Documents.ListByOwner(ctx, nil, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, other.ID, all[1].ID)

	rejected, err := st.Documents.ListByOwner(ctx, &owner, constants.DocumentStatusRejected)
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, older.ID, rejected[0].ID)

	nobody := uuid.New()
	none, err := st.Documents.ListByOwner(ctx, &nobody, "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMergeMetadataReadsStoredValue(t *testing.T) {
	ctx := context.Background()
	st := repotest.NewStore(t)

	doc, err := st.Documents.Create(ctx, &entity.Document{
		DocType:  constants.DocTypeInvoice,
		OwnerID:  uuid.New(),
		Metadata: entity.Metadata{HSCode: strp("8501")},
	})
	require.NoError(t, err)

	// written after the caller loaded doc
	require.NoError(t, st.Documents.UpdateMetadata(ctx, doc.ID, entity.Metadata{HSCode: strp("8501"), Shipper: strp("Gulf Traders Co.")}))

	stored, err := st.Documents.MergeMetadata(ctx, doc.ID, func(current entity.Metadata) (entity.Metadata, bool) {
		shipper, ok := current.Get("shipper")
		assert.True(t, ok)
		assert.Equal(t, "Gulf Traders Co.", shipper)
		current.Currency = strp("USD")
		return current, true
	})
	require.NoError(t, err)
	cur, _ := stored.Get("currency")
	assert.Equal(t, "USD", cur)

	got, err := st.Documents.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	for key, want := range map[string]string{"hs_code": "8501", "shipper": "Gulf Traders Co.", "currency": "USD"} {
		v, ok := got.Metadata.Get(key)
		assert.True(t, ok, key)
		assert.Equal(t, want, v, key)
	}

	unchanged, err := st.Documents.MergeMetadata(ctx, doc.ID, func(current entity.Metadata) (entity.Metadata, bool) {
		return entity.Metadata{}, false
	})
	require.NoError(t, err)
	_, ok := unchanged.Get("shipper")
	assert.True(t, ok, "no write when merge reports no change")

	_, err = st.Documents.MergeMetadata(ctx, uuid.New(), func(current entity.Metadata) (entity.Metadata, bool) {
		t.Error("merge called for a missing document")
		return current, false
	})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestCommentsNewestFirst(t *testing.T) {
	ctx := context.Background()
	st := repotest.NewStore(t)
	user := uuid.New()

	doc, err := st.Documents.Create(ctx, &entity.Document{DocType: constants.DocTypeInvoice, OwnerID: uuid.New()})
	require.NoError(t, err)
	otherDoc, err := st.Documents.Create(ctx, &entity.Document{DocType: constants.DocTypeInvoice, OwnerID: uuid.New()})
	require.NoError(t, err)

	for _, text := range []string{"first pass", "second pass"} {
		_, err := st.Comments.Create(ctx, &entity.Comment{DocumentID: doc.ID, UserID: user, Text: text})
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}
	_, err = st.Comments.Create(ctx, &entity.Comment{DocumentID: otherDoc.ID, UserID: user, Text: "elsewhere"})
	require.NoError(t, err)

	got, err := st.Comments.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "second pass", got[0].Text)
	assert.Equal(t, "first pass", got[1].Text)
	assert.Equal(t, user, got[0].UserID)
	assert.Equal(t, doc.ID, got[0].DocumentID)
	assert.False(t, got[0].CreatedAt.IsZero())

	none, err := st.Comments.ListByDocument(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, none)
}
