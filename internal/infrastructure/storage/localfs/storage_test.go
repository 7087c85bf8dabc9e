package localfs

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/workspace-ingest/internal/core/domain"
	"github.com/kirillkom/workspace-ingest/internal/core/ports"
)

func TestPutCreatesNestedKeysAndOverwrites(t *testing.T) {
	st, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	if err := st.Put(ctx, "u1/w1/a.pdf", strings.NewReader("one"), ports.PutOptions{Overwrite: true}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := st.Put(ctx, "u1/w1/a.pdf", strings.NewReader("two"), ports.PutOptions{Overwrite: true}); err != nil {
		t.Fatalf("Put() overwrite error = %v", err)
	}
	if err := st.Put(ctx, "u1/w1/a.pdf", strings.NewReader("three"), ports.PutOptions{}); !errors.Is(err, domain.ErrBlobExists) {
		t.Fatalf("expected ErrBlobExists, got %v", err)
	}

	rc, err := st.Open(ctx, "u1/w1/a.pdf")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	raw, _ := io.ReadAll(rc)
	if string(raw) != "two" {
		t.Fatalf("expected last write to win, got %q", raw)
	}
}

func TestPutRejectsEscapingKeys(t *testing.T) {
	st, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	keys := []string{"../outside", "u1/w1/..", "u1/w1/.", "u1//w1/a.pdf", "u1/./a.pdf", "u1/w1/"}
	for _, key := range keys {
		if err := st.Put(context.Background(), key, strings.NewReader("x"), ports.PutOptions{}); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("Put(%q): expected ErrInvalidInput, got %v", key, err)
		}
	}
}

func TestPutAfterRejectedDotKeyStillWorks(t *testing.T) {
	base := t.TempDir()
	st, err := New(base)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	_ = st.Put(ctx, "u1/w1/..", strings.NewReader("x"), ports.PutOptions{Overwrite: true})
	if err := st.Put(ctx, "u1/w1/report.txt", strings.NewReader("data"), ports.PutOptions{Overwrite: true}); err != nil {
		t.Fatalf("Put() after dot key error = %v", err)
	}
	info, err := os.Stat(filepath.Join(base, "u1"))
	if err != nil || !info.IsDir() {
		t.Fatalf("expected owner directory, got %v (err=%v)", info, err)
	}
}

func TestListSortsAndLimits(t *testing.T) {
	base := t.TempDir()
	st, err := New(base)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	old := time.Now().Add(-time.Hour)
	for i, key := range []string{"u1/w1/b.pdf", "u1/w1/a.pdf", "u1/w2/c.pdf", "u2/w1/d.pdf"} {
		if err := st.Put(ctx, key, strings.NewReader("x"), ports.PutOptions{}); err != nil {
			t.Fatalf("Put(%s) error = %v", key, err)
		}
		mod := old.Add(time.Duration(i) * time.Minute)
		if err := os.Chtimes(filepath.Join(base, filepath.FromSlash(key)), mod, mod); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	byKey, err := st.List(ctx, "u1/w1/", ports.ListOptions{Sort: ports.SortByKey})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(byKey) != 2 || byKey[0].Key != "u1/w1/a.pdf" || byKey[1].Key != "u1/w1/b.pdf" {
		t.Fatalf("unexpected key listing: %+v", byKey)
	}

	newest, err := st.List(ctx, "u1/", ports.ListOptions{Sort: ports.SortByLastModified, Limit: 1})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(newest) != 1 || newest[0].Key != "u1/w2/c.pdf" {
		t.Fatalf("unexpected newest listing: %+v", newest)
	}
}

func TestDeleteIgnoresMissingKeys(t *testing.T) {
	st, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	if err := st.Put(ctx, "u1/w1/a.pdf", strings.NewReader("x"), ports.PutOptions{}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := st.Delete(ctx, []string{"u1/w1/a.pdf", "u1/w1/missing.pdf"}); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := st.Open(ctx, "u1/w1/a.pdf"); !errors.Is(err, domain.ErrBlobNotFound) {
		t.Fatalf("expected ErrBlobNotFound, got %v", err)
	}
}
