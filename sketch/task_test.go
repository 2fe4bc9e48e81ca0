package sketch

import (
	"errors"
	"testing"
)

func TestTask_Lifecycle(t *testing.T) {
	task := newTask("load")
	if task.Status() != TaskPending {
		t.Fatalf("Status() = %s, want pending", task.Status())
	}
	if info := task.Info(); info.FinishedAt != nil || info.Kind != "load" {
		t.Errorf("unexpected pending info: %+v", info)
	}

	select {
	case <-task.Done():
		t.Fatal("Done() closed before finish")
	default:
	}

	task.finish(nil)
	if err := task.Wait(); err != nil {
		t.Errorf("Wait() = %v, want nil", err)
	}
	if task.Status() != TaskSucceeded {
		t.Errorf("Status() = %s, want succeeded", task.Status())
	}
}

func TestTask_FirstFinishWins(t *testing.T) {
	task := newTask("save")
	task.finish(errors.New("boom"))
	task.finish(nil)

	if task.Status() != TaskFailed {
		t.Errorf("Status() = %s, want failed", task.Status())
	}
	if task.Err() == nil || task.Info().Error != "boom" {
		t.Errorf("error not kept: %v / %+v", task.Err(), task.Info())
	}
}
