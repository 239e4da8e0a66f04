package wire

import (
	"time"
)

// TaskQueueService is the name of the task queue backend service.
const TaskQueueService = "taskqueue"

// Task queue methods.
const (
	MethodAdd        = "Add"
	MethodPurgeQueue = "PurgeQueue"
	MethodQueryTasks = "QueryTasks"
)

// DefaultQueueName is used when a task does not name its queue.
const DefaultQueueName = "default"

// TaskAddRequest enqueues one task.
type TaskAddRequest struct {
	QueueName string
	TaskName  string
	// ETA is when the task should run; the zero value means as soon as possible.
	ETA     time.Time
	Method  HTTPMethod
	URL     string
	Headers []Header
	Body    []byte
}

func (m TaskAddRequest) Encode() []byte {
	var e encoder
	encodeTaskAddRequest(&e, m)
	return e.b
}

func encodeTaskAddRequest(e *encoder, m TaskAddRequest) {
	e.string(1, m.QueueName)
	e.string(2, m.TaskName)
	if !m.ETA.IsZero() {
		e.int64(3, m.ETA.UnixMicro())
	}
	e.uint64(4, uint64(m.Method))
	e.string(5, m.URL)
	encodeHeaders(e, 6, m.Headers)
	e.bytes(7, m.Body)
}

// DecodeTaskAddRequest decodes the request payload of a task enqueue operation.
func DecodeTaskAddRequest(payload []byte) (TaskAddRequest, error) {
	var m TaskAddRequest
	err := eachField("TaskAddRequest", payload, func(f field) (err error) {
		switch f.num {
		case 1:
			m.QueueName, err = f.asString("queue_name")
		case 2:
			m.TaskName, err = f.asString("task_name")
		case 3:
			var usec int64
			usec, err = f.asInt64("eta_usec")
			if usec != 0 {
				m.ETA = time.UnixMicro(usec).UTC()
			}
		case 4:
			var v uint64
			v, err = f.asUint64("method")
			m.Method = HTTPMethod(v)
		case 5:
			m.URL, err = f.asString("url")
		case 6:
			var h Header
			h, err = decodeHeader("TaskAddRequest", f)
			m.Headers = append(m.Headers, h)
		case 7:
			m.Body, err = f.asBytes("body")
		}
		return err
	})
	if err != nil {
		return TaskAddRequest{}, err
	}
	return m, nil
}

// TaskAddResponse reports the name under which a task was enqueued. The name is empty when the
// task was not actually enqueued anywhere.
type TaskAddResponse struct {
	ChosenTaskName string
}

func (m TaskAddResponse) Encode() []byte {
	var e encoder
	e.string(1, m.ChosenTaskName)
	return e.b
}

func DecodeTaskAddResponse(data []byte) (TaskAddResponse, error) {
	var m TaskAddResponse
	err := eachField("TaskAddResponse", data, func(f field) (err error) {
		if f.num == 1 {
			m.ChosenTaskName, err = f.asString("chosen_task_name")
		}
		return err
	})
	return m, err
}

// QueueRequest names a queue for PurgeQueue and QueryTasks.
type QueueRequest struct {
	QueueName string
}

func (m QueueRequest) Encode() []byte {
	var e encoder
	e.string(1, m.QueueName)
	return e.b
}

func DecodeQueueRequest(data []byte) (QueueRequest, error) {
	var m QueueRequest
	err := eachField("QueueRequest", data, func(f field) (err error) {
		if f.num == 1 {
			m.QueueName, err = f.asString("queue_name")
		}
		return err
	})
	return m, err
}

// QueryTasksResponse lists the tasks waiting in a queue, in ETA order.
type QueryTasksResponse struct {
	Tasks []TaskAddRequest
}

func (m QueryTasksResponse) Encode() []byte {
	var e encoder
	for _, t := range m.Tasks {
		t := t
		e.message(1, func(e *encoder) { encodeTaskAddRequest(e, t) })
	}
	return e.b
}

func DecodeQueryTasksResponse(data []byte) (QueryTasksResponse, error) {
	var m QueryTasksResponse
	err := eachField("QueryTasksResponse", data, func(f field) (err error) {
		if f.num != 1 {
			return nil
		}
		var inner []byte
		if inner, err = f.asMessage("task"); err != nil {
			return err
		}
		var t TaskAddRequest
		if t, err = DecodeTaskAddRequest(inner); err != nil {
			return err
		}
		m.Tasks = append(m.Tasks, t)
		return nil
	})
	return m, err
}
