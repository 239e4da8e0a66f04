package taskqueue

import (
	"context"

	"github.com/backendtester/harness/apiproxy"
	"github.com/backendtester/harness/wire"
)

// Add enqueues a task and returns the name it was given. The name is empty if the task was
// accepted without being enqueued anywhere, which is what happens under a test harness.
func Add(ctx context.Context, task wire.TaskAddRequest) (string, error) {
	if task.QueueName == "" {
		task.QueueName = wire.DefaultQueueName
	}
	resp, err := apiproxy.MakeSyncCall(ctx, wire.TaskQueueService, wire.MethodAdd, task.Encode())
	if err != nil {
		return "", err
	}
	m, err := wire.DecodeTaskAddResponse(resp)
	if err != nil {
		return "", err
	}
	return m.ChosenTaskName, nil
}

// Purge removes every task from a queue.
func Purge(ctx context.Context, queue string) error {
	_, err := apiproxy.MakeSyncCall(ctx, wire.TaskQueueService, wire.MethodPurgeQueue,
		wire.QueueRequest{QueueName: queue}.Encode())
	return err
}

// Tasks lists the tasks waiting in a queue.
func Tasks(ctx context.Context, queue string) ([]wire.TaskAddRequest, error) {
	resp, err := apiproxy.MakeSyncCall(ctx, wire.TaskQueueService, wire.MethodQueryTasks,
		wire.QueueRequest{QueueName: queue}.Encode())
	if err != nil {
		return nil, err
	}
	m, err := wire.DecodeQueryTasksResponse(resp)
	if err != nil {
		return nil, err
	}
	return m.Tasks, nil
}
