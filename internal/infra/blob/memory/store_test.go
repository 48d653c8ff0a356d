package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"procurecore/internal/blob/core"
)

func TestPutGetDelete(t *testing.T) {
	store := New()
	ctx := context.Background()

	info, err := store.Put(ctx, "cases/c-1/dv/voucher.pdf", strings.NewReader("voucher"), core.PutOptions{ContentType: "application/pdf"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if info.Size != int64(len("voucher")) {
		t.Fatalf("size = %d", info.Size)
	}

	if _, err := store.Put(ctx, "cases/c-1/dv/voucher.pdf", strings.NewReader("again"), core.PutOptions{}); err == nil {
		t.Fatalf("duplicate Put should fail")
	}

	got, rc, err := store.Get(ctx, "cases/c-1/dv/voucher.pdf")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "voucher" || got.ContentType != "application/pdf" {
		t.Fatalf("got %q / %+v", body, got)
	}

	existed, err := store.Delete(ctx, "cases/c-1/dv/voucher.pdf")
	if err != nil || !existed {
		t.Fatalf("Delete = %v, %v", existed, err)
	}
	if _, _, err := store.Get(ctx, "cases/c-1/dv/voucher.pdf"); err == nil {
		t.Fatalf("Get after delete should fail")
	}
}

func TestListSortedByKey(t *testing.T) {
	store := New()
	ctx := context.Background()

	for _, key := range []string{"cases/c-1/rfq/b.pdf", "cases/c-1/rfq/a.pdf", "cases/c-2/rfq/z.pdf"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), core.PutOptions{}); err != nil {
			t.Fatalf("Put(%s): %v", key, err)
		}
	}
	infos, err := store.List(ctx, "cases/c-1/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "cases/c-1/rfq/a.pdf" || infos[1].Key != "cases/c-1/rfq/b.pdf" {
		t.Fatalf("infos = %+v", infos)
	}
}

func TestPresignUnsupported(t *testing.T) {
	store := New()
	_, err := store.PresignURL(context.Background(), "cases/c-1/rfq/a.pdf", core.SignedURLOptions{})
	if !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("err = %v", err)
	}
}
