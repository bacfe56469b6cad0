package usecase

import (
	"context"
	"errors"
	"testing"

	"fedresurs-radar/internal/core/domain"

	"github.com/google/uuid"
)

func TestReingestMessageWithLinked(t *testing.T) {
	root := message("многоквартирный дом")
	client := &fakeClient{
		byGUID: map[uuid.UUID]domain.RegistryMessage{root.GUID: root},
		linked: []domain.RegistryMessage{message("офисное здание"), message("")},
	}
	ingest := &fakeIngest{}
	uc := NewReingestMessageUseCase(client, fakeDecodePool{}, ingest)

	stats, err := uc.Execute(context.Background(), root.GUID, true)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Fetched != 3 || stats.Ingested != 2 || stats.Skipped != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if ingest.calls[0].GUID != root.GUID {
		t.Error("requested message was not ingested first")
	}

	stats, err = uc.Execute(context.Background(), root.GUID, false)
	if err != nil || stats.Fetched != 1 {
		t.Errorf("without linked: stats = %+v, err = %v", stats, err)
	}
}

func TestReingestUnknownMessage(t *testing.T) {
	uc := NewReingestMessageUseCase(&fakeClient{}, fakeDecodePool{}, &fakeIngest{})

	_, err := uc.Execute(context.Background(), uuid.New(), false)
	var apiErr *domain.ApiError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 404 {
		t.Errorf("error = %v, want 404 ApiError", err)
	}
}
