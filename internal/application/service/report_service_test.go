package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/site-audit/internal/application/port"
	"github.com/garyjia/site-audit/internal/domain/entity"
	"github.com/garyjia/site-audit/internal/domain/event"
)

type stubExporter struct {
	bundle *port.ReportBundle
	err    error
}

func (e *stubExporter) Export(_ context.Context, b *port.ReportBundle) (string, error) {
	e.bundle = b
	if e.err != nil {
		return "", e.err
	}
	return "/reports/" + b.Audit.Code + ".xlsx", nil
}

// finalizedAudit returns an audit parked at stage 7 with a draft report
func (e *testEnv) finalizedAudit(t *testing.T) *entity.Audit {
	t.Helper()
	audit := e.auditAt(t, entity.StageConsolidation)
	e.resolve(t, audit.ID, "red", entity.ResultCumple, 92)
	_, err := e.aggregation.Finalize(context.Background(), audit.ID, auditor)
	require.NoError(t, err)
	e.forceStage(t, audit.ID, entity.StageFinalReport)
	return audit
}

func TestReportService_ApprovalAndDelivery(t *testing.T) {
	env := newTestEnv(t, twoSections())
	ctx := context.Background()
	audit := env.finalizedAudit(t)
	reviewer := Actor{ID: "lead-1", Role: "lead"}

	r, err := env.reports.SubmitForReview(ctx, audit.ID, auditor)
	require.NoError(t, err)
	assert.Equal(t, entity.ReportInReview, r.ApprovalState)

	r, err = env.reports.ReturnToDraft(ctx, audit.ID, reviewer)
	require.NoError(t, err)
	assert.Equal(t, entity.ReportDraft, r.ApprovalState)

	_, err = env.reports.Approve(ctx, audit.ID, reviewer)
	assert.ErrorIs(t, err, entity.ErrInvalidStateTransition, "draft reports cannot be approved")

	_, err = env.reports.SubmitForReview(ctx, audit.ID, auditor)
	require.NoError(t, err)
	r, err = env.reports.Approve(ctx, audit.ID, reviewer)
	require.NoError(t, err)
	assert.Equal(t, entity.ReportApproved, r.ApprovalState)
	assert.Equal(t, reviewer.ID, r.ApprovedBy)
	assert.Equal(t, testNow, *r.ApprovedAt)

	// delivery waits for the closure stage
	_, err = env.reports.Deliver(ctx, audit.ID, reviewer)
	assert.ErrorIs(t, err, entity.ErrInvalidStateTransition)

	env.forceStage(t, audit.ID, entity.StageClosure)
	r, err = env.reports.Deliver(ctx, audit.ID, reviewer)
	require.NoError(t, err)
	assert.Equal(t, entity.ReportDelivered, r.ApprovalState)
	assert.NotNil(t, r.DeliveredAt)

	delivered := env.events.ofType(event.TypeReportDelivered)
	require.Len(t, delivered, 1)
	assert.Equal(t, audit.ID, delivered[0].AuditID)
}

func TestReportService_ProviderResponse(t *testing.T) {
	tests := []struct {
		name    string
		contest bool
		comment string
		want    entity.ApprovalState
		wantErr error
	}{
		{"accept without comment", false, "", entity.ReportAccepted, nil},
		{"contest with comment", true, "la sección de red está mal puntuada", entity.ReportContested, nil},
		{"contest needs comment", true, "", "", entity.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, twoSections())
			ctx := context.Background()
			audit := env.finalizedAudit(t)
			_, err := env.reports.SubmitForReview(ctx, audit.ID, auditor)
			require.NoError(t, err)
			_, err = env.reports.Approve(ctx, audit.ID, auditor)
			require.NoError(t, err)
			env.forceStage(t, audit.ID, entity.StageClosure)
			_, err = env.reports.Deliver(ctx, audit.ID, auditor)
			require.NoError(t, err)

			// answers are still accepted after the audit closed
			env.forceStage(t, audit.ID, entity.StageCompleted)

			provider := Actor{ID: "prov-1", Role: "provider"}
			var r *entity.Report
			if tt.contest {
				r, err = env.reports.ProviderContest(ctx, audit.ID, tt.comment, provider)
			} else {
				r, err = env.reports.ProviderAccept(ctx, audit.ID, tt.comment, provider)
			}
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.ApprovalState)
			assert.Equal(t, tt.comment, r.ProviderResponse)
			assert.NotNil(t, r.ProviderRespondedAt)
		})
	}
}

func TestReportService_GetMissingReport(t *testing.T) {
	env := newTestEnv(t, twoSections())
	audit := env.auditAt(t, entity.StageFinalReport)

	_, err := env.reports.Get(context.Background(), audit.ID)
	assert.ErrorIs(t, err, entity.ErrNotFound)

	_, err = env.reports.SubmitForReview(context.Background(), audit.ID, auditor)
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestReportService_Export(t *testing.T) {
	env := newTestEnv(t, twoSections())
	ctx := context.Background()
	audit := env.finalizedAudit(t)

	_, err := env.reports.Export(ctx, audit.ID)
	assert.Error(t, err, "export without an exporter")

	exporter := &stubExporter{}
	svc := NewReportService(env.deps, exporter)
	path, err := svc.Export(ctx, audit.ID)
	require.NoError(t, err)
	assert.Equal(t, "/reports/"+audit.Code+".xlsx", path)
	require.NotNil(t, exporter.bundle)
	assert.Len(t, exporter.bundle.Sections, 2)
	assert.Len(t, exporter.bundle.Evaluations, 2)
	assert.Equal(t, 92.0, exporter.bundle.Report.TotalScore)

	exporter.err = errors.New("disk full")
	_, err = svc.Export(ctx, audit.ID)
	assert.ErrorContains(t, err, "disk full")
}
