package util_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/derickschaefer/pitboss/internal/util"
)

func TestParseDate(t *testing.T) {
	berlin := time.FixedZone("CET", 3600)
	got, err := util.ParseDate("2024-03-05", berlin)
	if err != nil {
		t.Fatal(err)
	}
	if got.Location() != berlin || got.Hour() != 0 || got.Day() != 5 {
		t.Errorf("got %v", got)
	}
	if util.FormatDate(got) != "2024-03-05" {
		t.Errorf("FormatDate = %s", util.FormatDate(got))
	}

	ts, err := util.ParseDate("2024-03-05T10:00:00Z", nil)
	if err != nil || ts.Hour() != 10 {
		t.Errorf("RFC3339: got %v, %v", ts, err)
	}

	if _, err := util.ParseDate("05/03/2024", nil); err == nil {
		t.Error("expected error for unsupported layout")
	}
}

func TestParseWindow(t *testing.T) {
	from, to, err := util.ParseWindow("2024-01-01", "2024-01-01", time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if to.Sub(from) != 24*time.Hour {
		t.Errorf("bare --to should include the whole day, got %v", to.Sub(from))
	}

	from, to, err = util.ParseWindow("", "", time.UTC)
	if err != nil || !from.IsZero() || !to.IsZero() {
		t.Errorf("empty window: %v %v %v", from, to, err)
	}

	if _, _, err := util.ParseWindow("2024-01-02T00:00:00Z", "2024-01-01T00:00:00Z", time.UTC); err == nil {
		t.Error("expected error when --to precedes --from")
	}
	if _, _, err := util.ParseWindow("nope", "", time.UTC); err == nil {
		t.Error("expected --from parse error")
	}
}

func TestMultiError(t *testing.T) {
	var m util.MultiError
	m.Add(nil)
	if m.Err() != nil {
		t.Fatal("no errors collected yet")
	}
	m.Add(errors.New("first"))
	m.Add(context.Canceled)
	err := m.Err()
	if err == nil || err.Error() != "first; context canceled" {
		t.Fatalf("got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("errors.Is should see collected errors")
	}
}
