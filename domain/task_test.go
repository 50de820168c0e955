package domain

import (
	"strings"
	"testing"

	"github.com/bytedance/sonic"
)

func TestTaskMarshalIncludesZeroCompleted(t *testing.T) {
	task := Task{ID: "t1", Title: "Title", Owner: "u1"}

	payload, err := sonic.Marshal(task)
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}

	if !strings.Contains(string(payload), "\"completed\":false") {
		t.Fatalf("expected completed field to be present, got %s", payload)
	}
}

func TestTaskMarshalOmitsUnsetDueDate(t *testing.T) {
	task := Task{ID: "t1", Title: "Title", Owner: "u1"}

	payload, err := sonic.Marshal(task)
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}

	if strings.Contains(string(payload), "dueDate") {
		t.Fatalf("expected dueDate to be omitted, got %s", payload)
	}
}

func TestUserMarshalHidesPasswordHash(t *testing.T) {
	user := User{ID: "u1", Name: "Ann", Email: "a@x.com", PasswordHash: "bcrypt-digest"}

	payload, err := sonic.Marshal(user)
	if err != nil {
		t.Fatalf("marshal user: %v", err)
	}

	if strings.Contains(string(payload), "bcrypt-digest") {
		t.Fatalf("password hash leaked into payload: %s", payload)
	}

	public := user.Public()
	if public.ID != "u1" || public.Name != "Ann" || public.Email != "a@x.com" {
		t.Fatalf("unexpected public projection: %+v", public)
	}
}
