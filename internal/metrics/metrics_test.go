package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordNotification(t *testing.T) {
	accepted := testutil.ToFloat64(Notifications.WithLabelValues("accepted"))
	rejected := testutil.ToFloat64(Notifications.WithLabelValues("rejected"))

	RecordNotification(true)
	RecordNotification(true)
	RecordNotification(false)

	if got := testutil.ToFloat64(Notifications.WithLabelValues("accepted")) - accepted; got != 2 {
		t.Errorf("accepted delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(Notifications.WithLabelValues("rejected")) - rejected; got != 1 {
		t.Errorf("rejected delta = %v, want 1", got)
	}
}

func TestRecordCycle(t *testing.T) {
	before := testutil.ToFloat64(Cycles.WithLabelValues("store_failed"))
	RecordCycle("store_failed", 1500*time.Millisecond)
	if got := testutil.ToFloat64(Cycles.WithLabelValues("store_failed")) - before; got != 1 {
		t.Errorf("store_failed delta = %v, want 1", got)
	}
}

func TestRecordSuccess(t *testing.T) {
	at := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	RecordSuccess(4096, at)

	if got := testutil.ToFloat64(SnapshotSize); got != 4096 {
		t.Errorf("SnapshotSize = %v, want 4096", got)
	}
	if got := testutil.ToFloat64(LastSuccessTimestamp); got != float64(at.Unix()) {
		t.Errorf("LastSuccessTimestamp = %v, want %d", got, at.Unix())
	}
}

func TestSetInfo(t *testing.T) {
	SetInfo("sftp", "online")
	SetInfo("file", "vacuum")

	if got := testutil.CollectAndCount(Info); got != 1 {
		t.Errorf("Info series = %d, want 1", got)
	}
	if got := testutil.ToFloat64(Info.WithLabelValues("file", "vacuum")); got != 1 {
		t.Errorf("Info{file,vacuum} = %v, want 1", got)
	}
}
