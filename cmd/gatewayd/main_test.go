package main

import (
	"context"
	"testing"

	"github.com/shurfire/rfgateway/internal/remote"
	"github.com/shurfire/rfgateway/internal/scheduler"
	"github.com/shurfire/rfgateway/internal/shade"
	"github.com/shurfire/rfgateway/internal/wire"
)

type fakeDeliverer struct{}

func (fakeDeliverer) DeliverRequest(tok wire.Token) bool { return true }

func newTestActionHandler() *actionHandler {
	arena := wire.NewArena()
	service := shade.NewService(arena, fakeDeliverer{})
	nest := &nestState{}
	sched := scheduler.New(nest, nil)
	return &actionHandler{service: service, sched: sched, nest: nest}
}

func TestHandleActionDispatchesSceneKinds(t *testing.T) {
	a := newTestActionHandler()

	status, id := a.HandleAction(context.Background(), remote.HubAction{ID: "1", Name: remote.ActionActivateScene, SceneID: 3})
	if status != "ok" || id != "1" {
		t.Fatalf("activate-scene: got (%q, %q)", status, id)
	}

	status, id = a.HandleAction(context.Background(), remote.HubAction{ID: "2", Name: remote.ActionActivateMultiScene, MultiSceneIDs: []int{1, 2}})
	if status != "ok" || id != "2" {
		t.Fatalf("activate-multi-scene: got (%q, %q)", status, id)
	}
}

func TestHandleActionTogglesSchedules(t *testing.T) {
	a := newTestActionHandler()

	status, _ := a.HandleAction(context.Background(), remote.HubAction{ID: "1", Name: remote.ActionDisableSchedules})
	if status != "ok" {
		t.Fatalf("disable-schedules: got %q", status)
	}
	if a.sched.SchedulesEnabled() {
		t.Fatal("expected schedules disabled")
	}

	status, _ = a.HandleAction(context.Background(), remote.HubAction{ID: "2", Name: remote.ActionEnableSchedules})
	if status != "ok" {
		t.Fatalf("enable-schedules: got %q", status)
	}
	if !a.sched.SchedulesEnabled() {
		t.Fatal("expected schedules re-enabled")
	}
}

func TestHandleActionClearsNest(t *testing.T) {
	a := newTestActionHandler()
	a.nest.suppressed = true

	status, _ := a.HandleAction(context.Background(), remote.HubAction{ID: "1", Name: remote.ActionClearNest})
	if status != "ok" {
		t.Fatalf("clear-nest: got %q", status)
	}
	if a.nest.SuppressScenes() {
		t.Fatal("expected nest suppression cleared")
	}
}

func TestHandleActionIgnoresUnknownName(t *testing.T) {
	a := newTestActionHandler()

	status, id := a.HandleAction(context.Background(), remote.HubAction{ID: "1", Name: "something-else"})
	if status != "ignored" || id != "1" {
		t.Fatalf("got (%q, %q)", status, id)
	}
}
