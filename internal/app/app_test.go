package app

import (
	"context"
	"testing"
)

func TestSetup_NilConfig(t *testing.T) {
	t.Parallel()

	if _, err := Setup(context.Background(), nil, nil); err == nil {
		t.Error("Setup(nil config) expected error")
	}
}

func TestClose_Empty(t *testing.T) {
	t.Parallel()

	a := &App{}
	if err := a.Close(); err != nil {
		t.Errorf("Close() on empty app error = %v", err)
	}
}
