package webhook

import (
	"strings"
	"testing"
	"time"

	"github.com/stayspace/hooks/internal/models"
)

func newDelivery(t *testing.T, l *Ledger, webhookID string) *models.WebhookDeliveryModel {
	t.Helper()
	d, err := l.Create(CreateDeliveryInput{
		WebhookID: webhookID,
		EventType: string(EventReservationCreated),
		Payload:   `{"id":"del_x","type":"reservation.created","data":{}}`,
	})
	if err != nil {
		t.Fatalf("create delivery: %v", err)
	}
	return d
}

func TestLedgerCreateStartsPendingWithZeroAttempts(t *testing.T) {
	db := newTestDB(t)
	l := NewLedger(db)
	w := mustCreateWebhook(t, NewRegistry(db))

	d := newDelivery(t, l, w.ID)
	if d.Status != models.DeliveryStatusPending {
		t.Fatalf("status = %q, want pending", d.Status)
	}
	if d.Attempts != 0 {
		t.Fatalf("attempts = %d, want 0", d.Attempts)
	}
	if d.CompletedAt != nil || d.NextRetryAt != nil {
		t.Fatal("fresh delivery must have no completion or retry schedule")
	}
}

func TestLedgerMarkTransitionsCountAttempts(t *testing.T) {
	db := newTestDB(t)
	l := NewLedger(db)
	w := mustCreateWebhook(t, NewRegistry(db))

	d := newDelivery(t, l, w.ID)
	code := 503
	next := time.Now().Add(30 * time.Second)
	if err := l.MarkPendingRetry(d.ID, &code, "service unavailable", next); err != nil {
		t.Fatal(err)
	}

	got, err := l.GetByID(d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.DeliveryStatusPendingRetry {
		t.Fatalf("status = %q", got.Status)
	}
	if got.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", got.Attempts)
	}
	if got.NextRetryAt == nil {
		t.Fatal("next retry not scheduled")
	}
	if got.CompletedAt != nil {
		t.Fatal("pending_retry must not be completed")
	}

	if err := l.MarkSuccess(d.ID, 200, "ok"); err != nil {
		t.Fatal(err)
	}
	got, err = l.GetByID(d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.DeliveryStatusSuccess {
		t.Fatalf("status = %q", got.Status)
	}
	if got.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", got.Attempts)
	}
	if got.NextRetryAt != nil {
		t.Fatal("terminal delivery must clear next retry")
	}
	if got.CompletedAt == nil {
		t.Fatal("terminal delivery must record completion")
	}
	if got.ResponseCode == nil || *got.ResponseCode != 200 {
		t.Fatalf("response code = %v", got.ResponseCode)
	}
}

func TestLedgerMarkFailedWithoutResponseCode(t *testing.T) {
	db := newTestDB(t)
	l := NewLedger(db)
	w := mustCreateWebhook(t, NewRegistry(db))

	d := newDelivery(t, l, w.ID)
	if err := l.MarkFailed(d.ID, nil, "connection refused"); err != nil {
		t.Fatal(err)
	}

	got, err := l.GetByID(d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.DeliveryStatusFailed {
		t.Fatalf("status = %q", got.Status)
	}
	if got.ResponseCode != nil {
		t.Fatalf("transport failure must keep a null response code, got %d", *got.ResponseCode)
	}
	if got.ResponseBody == nil || *got.ResponseBody != "connection refused" {
		t.Fatalf("response body = %v", got.ResponseBody)
	}
}

func TestLedgerTruncatesResponseBody(t *testing.T) {
	db := newTestDB(t)
	l := NewLedger(db)
	w := mustCreateWebhook(t, NewRegistry(db))

	d := newDelivery(t, l, w.ID)
	huge := strings.Repeat("x", maxResponseBodyBytes*3)
	if err := l.MarkSuccess(d.ID, 200, huge); err != nil {
		t.Fatal(err)
	}

	got, err := l.GetByID(d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ResponseBody == nil || len(*got.ResponseBody) != maxResponseBodyBytes {
		t.Fatalf("body not truncated to %d bytes", maxResponseBodyBytes)
	}
}

func TestLedgerGetPendingRetriesDueOrderedAndBounded(t *testing.T) {
	db := newTestDB(t)
	l := NewLedger(db)
	w := mustCreateWebhook(t, NewRegistry(db))

	now := time.Now()
	late := newDelivery(t, l, w.ID)
	early := newDelivery(t, l, w.ID)
	future := newDelivery(t, l, w.ID)
	terminal := newDelivery(t, l, w.ID)

	if err := l.MarkPendingRetry(late.ID, nil, "", now.Add(-1*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := l.MarkPendingRetry(early.ID, nil, "", now.Add(-10*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := l.MarkPendingRetry(future.ID, nil, "", now.Add(1*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := l.MarkFailed(terminal.ID, nil, "done"); err != nil {
		t.Fatal(err)
	}

	due, err := l.GetPendingRetries()
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 2 {
		t.Fatalf("want 2 due retries, got %d", len(due))
	}
	if due[0].ID != early.ID || due[1].ID != late.ID {
		t.Fatalf("due retries not ordered oldest first: %s, %s", due[0].ID, due[1].ID)
	}
}

func TestLedgerGetForWebhookNewestFirstWithLimit(t *testing.T) {
	db := newTestDB(t)
	l := NewLedger(db)
	w := mustCreateWebhook(t, NewRegistry(db))

	var last string
	for i := 0; i < 5; i++ {
		d := newDelivery(t, l, w.ID)
		last = d.ID
		// created_at must strictly increase for the ordering assertion
		db.Model(d).UpdateColumn("created_at", time.Now().Add(time.Duration(i)*time.Second))
	}

	items, err := l.GetForWebhook(w.ID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("want 3 items, got %d", len(items))
	}
	if items[0].ID != last {
		t.Fatal("most recent delivery should come first")
	}
}

func TestLedgerGetStats(t *testing.T) {
	db := newTestDB(t)
	l := NewLedger(db)
	w := mustCreateWebhook(t, NewRegistry(db))

	empty, err := l.GetStats(w.ID)
	if err != nil {
		t.Fatal(err)
	}
	if empty.Total != 0 || empty.SuccessRate != nil || empty.LastDeliveryStatus != nil {
		t.Fatalf("empty stats should be zero with null rate: %+v", empty)
	}

	a := newDelivery(t, l, w.ID)
	b := newDelivery(t, l, w.ID)
	c := newDelivery(t, l, w.ID)
	if err := l.MarkSuccess(a.ID, 200, ""); err != nil {
		t.Fatal(err)
	}
	if err := l.MarkSuccess(b.ID, 204, ""); err != nil {
		t.Fatal(err)
	}
	if err := l.MarkFailed(c.ID, nil, "timeout"); err != nil {
		t.Fatal(err)
	}

	stats, err := l.GetStats(w.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 3 || stats.Successful != 2 || stats.Failed != 1 {
		t.Fatalf("counts = %+v", stats)
	}
	if stats.SuccessRate == nil || *stats.SuccessRate != 67 {
		t.Fatalf("success rate = %v, want 67", stats.SuccessRate)
	}
	if stats.LastDeliveryStatus == nil {
		t.Fatal("last delivery status missing")
	}
}

func TestLedgerHistoryOutlivesSoftDelete(t *testing.T) {
	db := newTestDB(t)
	r := NewRegistry(db)
	l := NewLedger(db)
	w := mustCreateWebhook(t, r)

	d := newDelivery(t, l, w.ID)
	if err := l.MarkSuccess(d.ID, 200, "ok"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.SoftDelete(w.ID); err != nil {
		t.Fatal(err)
	}

	items, err := l.GetForWebhook(w.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("delivery history lost after soft delete: %d rows", len(items))
	}
}
