package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaidashi/invoice-reconciler/internal/export"
	"github.com/vaidashi/invoice-reconciler/internal/models"
	"github.com/vaidashi/invoice-reconciler/pkg/logger"
)

type fakeSource struct {
	groups    func() []*models.PartnerGroup
	headers   map[string][]string
	mappings  models.VendorMappings
	persisted [][]*models.Order
}

func (f *fakeSource) FetchInvoiceableOrders(ctx context.Context) ([]*models.PartnerGroup, error) {
	return f.groups(), nil
}

func (f *fakeSource) FetchCSVHeaders(ctx context.Context) (map[string][]string, error) {
	return f.headers, nil
}

func (f *fakeSource) FetchVendorMapping(ctx context.Context) (models.VendorMappings, error) {
	return f.mappings, nil
}

func (f *fakeSource) PersistInvoiceStatus(ctx context.Context, orders []*models.Order) error {
	f.persisted = append(f.persisted, orders)
	return nil
}

// identityEnricher passes groups through untouched; enrichment behavior has
// its own tests
type identityEnricher struct{}

func (identityEnricher) Enrich(ctx context.Context, groups []*models.PartnerGroup) []*models.PartnerGroup {
	return groups
}

type fakeWriter struct {
	saved []string
}

func (f *fakeWriter) Save(a *export.Assembler, folder string) (string, error) {
	if len(a.Rows()) == 0 {
		return "", nil
	}

	path := "tmp/" + folder + "/Invoice.csv"
	f.saved = append(f.saved, path)
	return path, nil
}

type fakeUploader struct {
	uploads [][]string
}

func (f *fakeUploader) Upload(ctx context.Context, paths []string) {
	if len(paths) > 0 {
		f.uploads = append(f.uploads, paths)
	}
}

func newTestRunner(source *fakeSource, builder *fakeBuilder) (*Runner, *fakeWriter, *fakeUploader, *runnerNotifier) {
	l := logger.NewLogger("error")
	writer := &fakeWriter{}
	uploader := &fakeUploader{}
	notifier := &runnerNotifier{}

	runner := NewRunner(
		"run-test",
		source,
		identityEnricher{},
		NewOrchestrator(builder, l),
		writer,
		uploader,
		notifier,
		l,
	)

	return runner, writer, uploader, notifier
}

type runnerNotifier struct {
	subjects []string
	bodies   []string
}

func (r *runnerNotifier) Notify(subject, body string) error {
	r.subjects = append(r.subjects, subject)
	r.bodies = append(r.bodies, body)
	return nil
}

func TestRunEmptyBatch(t *testing.T) {
	source := &fakeSource{
		groups:   func() []*models.PartnerGroup { return nil },
		headers:  testHeaders,
		mappings: testMappings,
	}

	runner, writer, uploader, notifier := newTestRunner(source, newFakeBuilder())

	err := runner.Run(context.Background())

	require.NoError(t, err)
	assert.Empty(t, writer.saved)
	assert.Empty(t, uploader.uploads)
	assert.Empty(t, source.persisted)
	require.Len(t, notifier.subjects, 1, "exactly one summary notification")
	assert.Contains(t, notifier.bodies[0], "no orders")
}

func TestRunHappyPath(t *testing.T) {
	source := &fakeSource{
		groups: func() []*models.PartnerGroup {
			return []*models.PartnerGroup{
				testGroup("aag", enrichedOrder("1001"), enrichedOrder("1002")),
			}
		},
		headers:  testHeaders,
		mappings: testMappings,
	}

	runner, writer, uploader, notifier := newTestRunner(source, newFakeBuilder())

	err := runner.Run(context.Background())

	require.NoError(t, err)
	assert.Len(t, writer.saved, 1)
	require.Len(t, uploader.uploads, 1)
	assert.Equal(t, writer.saved, uploader.uploads[0])

	require.Len(t, source.persisted, 1)
	assert.Len(t, source.persisted[0], 2)

	require.Len(t, notifier.subjects, 1)
	assert.Equal(t, "Invoicing ran successfully", notifier.subjects[0])
}

func TestRunExceptionReport(t *testing.T) {
	source := &fakeSource{
		groups: func() []*models.PartnerGroup {
			return []*models.PartnerGroup{
				testGroup("aag", enrichedOrder("1001"), enrichedOrder("1002")),
			}
		},
		headers:  testHeaders,
		mappings: testMappings,
	}

	builder := newFakeBuilder()
	builder.failCreate["AAG1002"] = true

	runner, _, _, notifier := newTestRunner(source, builder)

	err := runner.Run(context.Background())

	require.NoError(t, err, "per-order failures never abort the batch")
	require.Len(t, notifier.subjects, 2, "exception report plus run summary")
	assert.Equal(t, "Invoicing exceptions report", notifier.subjects[0])
	assert.Contains(t, notifier.bodies[0], "1002")
	assert.Equal(t, "Invoicing ran successfully", notifier.subjects[1])
}

func TestRunTwiceCreatesNoDuplicates(t *testing.T) {
	makeSource := func() *fakeSource {
		return &fakeSource{
			groups: func() []*models.PartnerGroup {
				return []*models.PartnerGroup{
					testGroup("aag", enrichedOrder("1001"), enrichedOrder("1002")),
				}
			},
			headers:  testHeaders,
			mappings: testMappings,
		}
	}

	// One builder across both runs: it remembers the invoices like the
	// accounting service would
	builder := newFakeBuilder()

	first, _, _, _ := newTestRunner(makeSource(), builder)
	require.NoError(t, first.Run(context.Background()))
	assert.Equal(t, 2, builder.createCalls)

	secondSource := makeSource()
	second, _, _, notifier := newTestRunner(secondSource, builder)
	require.NoError(t, second.Run(context.Background()))

	assert.Equal(t, 2, builder.createCalls, "no new invoices on the re-run")

	// Every order resolves via the idempotency probe and still gets its
	// status reported
	require.Len(t, secondSource.persisted, 1)
	assert.Len(t, secondSource.persisted[0], 2)
	assert.Contains(t, notifier.subjects, "Invoicing exceptions report")
}
