package documents_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/tradedocs/constants"
	"github.com/joseph-ayodele/tradedocs/internal/async"
	"github.com/joseph-ayodele/tradedocs/internal/audit"
	"github.com/joseph-ayodele/tradedocs/internal/common"
	"github.com/joseph-ayodele/tradedocs/internal/documents"
	"github.com/joseph-ayodele/tradedocs/internal/matcher"
	"github.com/joseph-ayodele/tradedocs/internal/repository"
	"github.com/joseph-ayodele/tradedocs/internal/repository/repotest"
	"github.com/joseph-ayodele/tradedocs/internal/validation"
)

type recordingQueue struct {
	mu   sync.Mutex
	jobs []async.Job
	err  error
}

func (q *recordingQueue) Enqueue(_ context.Context, job async.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) Shutdown(context.Context) {}

type fixture struct {
	st    *repository.Store
	queue *recordingQueue
	svc   *documents.Service
}

func newFixture(t *testing.T, rates documents.RateProvider) *fixture {
	st := repotest.NewStore(t)
	logger := repotest.Logger()
	sink := audit.NewSink(st.AuditLogs, logger)
	engine := validation.NewEngine(st.Documents, st.Files, st.Validations, matcher.New(st.Documents, logger), sink, logger)
	q := &recordingQueue{}
	return &fixture{st: st, queue: q, svc: documents.NewService(st, engine, q, rates, sink, logger)}
}

func filesFor(dt constants.DocType) map[string]string {
	out := map[string]string{}
	for _, f := range constants.RequiredFiles(dt) {
		out[f] = "/uploads/" + f + ".pdf"
	}
	return out
}

func TestUploadCreatesDocumentAndQueuesFiles(t *testing.T) {
	f := newFixture(t, nil)
	ctx := common.WithTraceID(context.Background(), "req-42")
	owner := uuid.New()

	res, err := f.svc.Upload(ctx, documents.UploadRequest{
		OwnerID:  owner,
		DocType:  "invoice",
		Metadata: []byte(`{"hs_code": 8501, "currency": "USD"}`),
		Files:    filesFor(constants.DocTypeInvoice),
	})
	require.NoError(t, err)
	assert.Equal(t, constants.DocumentStatusPending, res.Document.Status)
	assert.Equal(t, "8501", res.Document.Metadata.Trimmed("hs_code"))
	assert.Len(t, res.Files, len(constants.RequiredFiles(constants.DocTypeInvoice)))
	assert.Empty(t, res.Warnings)

	require.Len(t, f.queue.jobs, len(res.Files))
	for i, job := range f.queue.jobs {
		assert.Equal(t, res.Files[i].ID, job.FileID)
		assert.Equal(t, "req-42", job.TraceID)
	}

	stored, err := f.st.Files.ListByDocument(ctx, res.Document.ID)
	require.NoError(t, err)
	assert.Len(t, stored, len(res.Files))

	logs, err := f.st.AuditLogs.ListByAction(ctx, constants.AuditUploadedDocument)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, owner, *logs[0].ActorID)
}

func TestUploadRejectsBadInput(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	owner := uuid.New()

	files := filesFor(constants.DocTypeInvoice)
	delete(files, "weight")
	delete(files, "currency")
	_, err := f.svc.Upload(ctx, documents.UploadRequest{OwnerID: owner, DocType: "invoice", Files: files})
	require.Error(t, err)
	missing, ok := documents.IsMissingFiles(err)
	require.True(t, ok)
	assert.Equal(t, []string{"weight", "currency"}, missing)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = f.svc.Upload(ctx, documents.UploadRequest{OwnerID: owner, DocType: "certificate_of_origin", Files: files})
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = f.svc.Upload(ctx, documents.UploadRequest{OwnerID: owner, DocType: "invoice", Files: filesFor(constants.DocTypeInvoice), Metadata: []byte(`{"colour": "red"}`)})
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	bad := filesFor(constants.DocTypeInvoice)
	bad["weight"] = "/uploads/weight.docx"
	_, err = f.svc.Upload(ctx, documents.UploadRequest{OwnerID: owner, DocType: "invoice", Files: bad})
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	assert.Empty(t, f.queue.jobs)
	counts, err := f.st.Documents.CountByStatus(ctx, &owner)
	require.NoError(t, err)
	assert.Equal(t, 0, counts[constants.DocumentStatusPending])
}

func TestUploadEnqueueFailureIsAWarning(t *testing.T) {
	f := newFixture(t, nil)
	f.queue.err = async.ErrQueueClosed

	res, err := f.svc.Upload(context.Background(), documents.UploadRequest{OwnerID: uuid.New(), DocType: "bol_awb", Files: filesFor(constants.DocTypeBolAwb)})
	require.NoError(t, err)
	assert.Len(t, res.Warnings, len(res.Files))
}

func TestUploadDeliveryOrderComputesDuties(t *testing.T) {
	rates := documents.StaticRates{"USD": decimal.RequireFromString("3.6725")}
	f := newFixture(t, rates)
	ctx := context.Background()

	res, err := f.svc.Upload(ctx, documents.UploadRequest{
		OwnerID:  uuid.New(),
		DocType:  "delivery_order",
		Metadata: []byte(`{"hs_code": "8501", "currency": "usd", "value": "1000"}`),
		Files:    filesFor(constants.DocTypeDeliveryOrder),
	})
	require.NoError(t, err)

	doc, err := f.st.Documents.GetByID(ctx, res.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, "3672.50", doc.Metadata.Trimmed("value_in_aed"))
	assert.Equal(t, "183.62", doc.Metadata.Trimmed("duties"))
	assert.Equal(t, "0.05", doc.Metadata.Trimmed("duty_percentage"))
}

func TestUploadRateFailureIsAudited(t *testing.T) {
	f := newFixture(t, documents.StaticRates{})
	ctx := context.Background()

	res, err := f.svc.Upload(ctx, documents.UploadRequest{
		OwnerID:  uuid.New(),
		DocType:  "delivery_order",
		Metadata: []byte(`{"currency": "XYZ", "value": "10"}`),
		Files:    filesFor(constants.DocTypeDeliveryOrder),
	})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.True(t, res.Document.Metadata.IsBlank("value_in_aed"))
	assert.Len(t, f.queue.jobs, len(res.Files))

	logs, err := f.st.AuditLogs.ListByAction(ctx, constants.AuditCurrencyConversionFailed)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, res.Document.ID.String(), logs[0].Details["doc_id"])
}

func TestDecide(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	res, err := f.svc.Upload(ctx, documents.UploadRequest{OwnerID: uuid.New(), DocType: "bol_awb", Files: filesFor(constants.DocTypeBolAwb)})
	require.NoError(t, err)
	reviewer := uuid.New()

	doc, err := f.svc.Decide(ctx, res.Document.ID, reviewer, "approve", "looks right")
	require.NoError(t, err)
	assert.Equal(t, constants.DocumentStatusApproved, doc.Status)

	doc, err = f.svc.Decide(ctx, res.Document.ID, reviewer, "REJECT", "")
	require.NoError(t, err)
	assert.Equal(t, constants.DocumentStatusRejected, doc.Status)

	_, err = f.svc.Decide(ctx, res.Document.ID, reviewer, "escalate", "")
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = f.svc.Decide(ctx, uuid.New(), reviewer, "approve", "")
	assert.ErrorIs(t, err, common.ErrNotFound)

	approvals, err := f.st.AuditLogs.ListByAction(ctx, constants.AuditApproveDocument)
	require.NoError(t, err)
	require.Len(t, approvals, 1)
	assert.Equal(t, reviewer, *approvals[0].ActorID)
	rejections, err := f.st.AuditLogs.ListByAction(ctx, constants.AuditRejectDocument)
	require.NoError(t, err)
	assert.Len(t, rejections, 1)
}

func TestRunValidationAndStats(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	owner := uuid.New()
	res, err := f.svc.Upload(ctx, documents.UploadRequest{OwnerID: owner, DocType: "invoice", Metadata: []byte(`{"currency": "USD"}`), Files: filesFor(constants.DocTypeInvoice)})
	require.NoError(t, err)
	reviewer := uuid.New()

	report, err := f.svc.RunValidation(ctx, res.Document.ID, reviewer)
	require.NoError(t, err)
	assert.False(t, report.ReadyForApproval)
	assert.Empty(t, report.MissingFiles)
	assert.Equal(t, "Missing or unmatched document types: packing_list, bol_awb, delivery_order", report.Message)

	hist, err := f.st.Validations.ListByDocument(ctx, res.Document.ID)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, constants.TriggerManual, hist[0].Trigger)
	assert.Equal(t, reviewer, *hist[0].RunBy)

	_, err = f.svc.RunValidation(ctx, uuid.New(), reviewer)
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = f.svc.Upload(ctx, documents.UploadRequest{OwnerID: uuid.New(), DocType: "bol_awb", Files: filesFor(constants.DocTypeBolAwb)})
	require.NoError(t, err)

	all, err := f.svc.Stats(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, all.Total)
	assert.Equal(t, 2, all.ByStatus[constants.DocumentStatusPending])
	assert.Equal(t, constants.AllDocumentStatuses, all.SortedStatuses())

	mine, err := f.svc.Stats(ctx, &owner)
	require.NoError(t, err)
	assert.Equal(t, 1, mine.Total)
}

type countingRates struct {
	calls int
	rate  decimal.Decimal
	err   error
}

func (c *countingRates) RateToAED(context.Context, string) (decimal.Decimal, error) {
	c.calls++
	return c.rate, c.err
}

func TestCachedRates(t *testing.T) {
	st := repotest.NewStore(t)
	ctx := context.Background()
	upstream := &countingRates{rate: decimal.RequireFromString("4.10")}
	rates := documents.NewCachedRates(st.CurrencyRate, upstream, repotest.Logger())

	r, err := rates.RateToAED(ctx, "eur")
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.RequireFromString("4.10")))

	upstream.rate = decimal.RequireFromString("9.99")
	r, err = rates.RateToAED(ctx, "EUR")
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.RequireFromString("4.10")), "served from cache")
	assert.Equal(t, 1, upstream.calls)

	upstream.err = errors.New("rate service down")
	_, err = rates.RateToAED(ctx, "GBP")
	assert.Error(t, err)

	_, err = documents.NewCachedRates(st.CurrencyRate, nil, nil).RateToAED(ctx, "JPY")
	assert.ErrorIs(t, err, documents.ErrRateUnavailable)
}

func TestListDetailAndComments(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	owner := uuid.New()

	first, err := f.svc.Upload(ctx, documents.UploadRequest{OwnerID: owner, DocType: "invoice", Files: filesFor(constants.DocTypeInvoice)})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := f.svc.Upload(ctx, documents.UploadRequest{OwnerID: owner, DocType: "bol_awb", Files: filesFor(constants.DocTypeBolAwb)})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = f.svc.Upload(ctx, documents.UploadRequest{OwnerID: uuid.New(), DocType: "bol_awb", Files: filesFor(constants.DocTypeBolAwb)})
	require.NoError(t, err)

	reviewer := uuid.New()
	_, err = f.svc.Decide(ctx, first.Document.ID, reviewer, "reject", "invoice value unreadable")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = f.svc.Decide(ctx, first.Document.ID, reviewer, "approve", "fixed after rescan")
	require.NoError(t, err)

	mine, err := f.svc.List(ctx, &owner, "")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.Document.ID, mine[0].ID, "newest first")
	assert.Equal(t, first.Document.ID, mine[1].ID)

	all, err := f.svc.List(ctx, nil, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	approved, err := f.svc.List(ctx, nil, "Approved")
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, first.Document.ID, approved[0].ID)

	_, err = f.svc.List(ctx, nil, "archived")
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	detail, err := f.svc.Detail(ctx, first.Document.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.DocumentStatusApproved, detail.Document.Status)
	assert.Len(t, detail.Files, len(constants.RequiredFiles(constants.DocTypeInvoice)))
	require.Len(t, detail.Comments, 2)
	assert.Equal(t, "fixed after rescan", detail.Comments[0].Text)
	assert.Equal(t, reviewer, detail.Comments[0].UserID)

	comments, err := f.svc.Comments(ctx, first.Document.ID)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "invoice value unreadable", comments[1].Text)

	none, err := f.svc.Comments(ctx, second.Document.ID)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = f.svc.Detail(ctx, uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = f.svc.Comments(ctx, uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestConvert(t *testing.T) {
	f := newFixture(t, documents.StaticRates{"USD": decimal.RequireFromString("3.6725")})
	ctx := context.Background()

	c, err := f.svc.Convert(ctx, " usd ", "1250")
	require.NoError(t, err)
	assert.Equal(t, "USD", c.From)
	assert.Equal(t, "AED", c.To)
	// 4590.625 ties to the even cent
	assert.Equal(t, "4590.62", c.Converted)

	c, err = f.svc.Convert(ctx, "USD", "0.5")
	require.NoError(t, err)
	assert.Equal(t, "1.84", c.Converted)

	c, err = f.svc.Convert(ctx, "AED", "10.005")
	require.NoError(t, err)
	assert.Equal(t, "10.00", c.Converted)

	_, err = f.svc.Convert(ctx, "JPY", "100")
	assert.ErrorIs(t, err, documents.ErrRateUnavailable)

	_, err = f.svc.Convert(ctx, "", "abc")
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = newFixture(t, nil).svc.Convert(ctx, "USD", "1")
	assert.ErrorIs(t, err, documents.ErrRateUnavailable)
}
