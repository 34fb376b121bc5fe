package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/splax/localvercel/sites/internal/domain"
	"github.com/splax/localvercel/sites/internal/repository"
)

// fakeRow fills the queue columns in jobColumns order.
type fakeRow struct {
	id      string
	status  string
	payload []byte
	created time.Time
}

func (r fakeRow) Scan(dest ...any) error {
	if len(dest) != 13 {
		return errors.New("unexpected column count")
	}
	*dest[0].(*string) = r.id
	*dest[1].(*string) = "proj-1"
	*dest[3].(*string) = r.status
	*dest[4].(*int) = 1
	*dest[5].(*[]byte) = r.payload
	*dest[6].(*int) = 0
	*dest[7].(*int) = 3
	*dest[10].(*time.Time) = r.created
	return nil
}

func TestScanJobDecodesPayload(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job, err := scanJob(fakeRow{
		id:      "job-1",
		status:  "processing",
		payload: []byte(`{"subdomain":"acme","deployment_domain":"www.acme.com"}`),
		created: created,
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if job.PayloadErr != nil {
		t.Fatalf("unexpected payload error: %v", job.PayloadErr)
	}
	if job.Status != domain.JobProcessing || job.Payload.DeploymentDomain != "www.acme.com" || !job.CreatedAt.Equal(created) {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestScanJobKeepsRowWithBadPayload(t *testing.T) {
	job, err := scanJob(fakeRow{
		id:      "job-2",
		status:  "processing",
		payload: []byte(`{"exportResult":"not an object"}`),
	})
	if err != nil {
		t.Fatalf("a bad payload must not fail the scan: %v", err)
	}
	if job.ID != "job-2" || job.MaxAttempts != 3 {
		t.Fatalf("row fields lost: %+v", job)
	}
	if !errors.Is(job.PayloadErr, domain.ErrInvalidPayload) || !errors.Is(job.PayloadErr, domain.ErrValidation) {
		t.Fatalf("expected invalid payload error, got %v", job.PayloadErr)
	}
	if job.Payload.ExportResult != nil {
		t.Fatalf("expected empty payload, got %+v", job.Payload)
	}
}

func TestValidUUID(t *testing.T) {
	if !validUUID("3f2504e0-4f89-11d3-9a0c-0305e82c3301") {
		t.Fatal("expected canonical uuid to be accepted")
	}
	for _, id := range []string{"", "job-1", "not-a-uuid", "3f2504e0-4f89-11d3-9a0c"} {
		if validUUID(id) {
			t.Fatalf("expected %q to be rejected", id)
		}
	}
}

func TestMalformedIDsNeverReachTheDatabase(t *testing.T) {
	// A nil pool panics if any query is attempted.
	repo := New(nil)
	ctx := context.Background()

	if _, err := repo.GetJobByID(ctx, "job-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for job, got %v", err)
	}
	if _, err := repo.GetProjectByID(ctx, "../etc"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for project, got %v", err)
	}
	logs, err := repo.ListLogsByDeployment(ctx, "nope", 10, 0)
	if err != nil || logs == nil || len(logs) != 0 {
		t.Fatalf("expected empty log page, got %v %v", logs, err)
	}
}
