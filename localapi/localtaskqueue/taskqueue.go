// Package localtaskqueue is the in-process implementation of the task queue service. Tasks are
// held per queue and never executed; they can be listed and purged.
package localtaskqueue

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"golang.org/x/exp/maps"

	"github.com/backendtester/harness/apiproxy"
	"github.com/backendtester/harness/framework/helpers"
	"github.com/backendtester/harness/localapi"
	"github.com/backendtester/harness/wire"
)

// Options is the content of the task queue manifest. The default queue always exists.
type Options struct {
	Queues []string `yaml:"queues"`
}

// Service is the local task queue.
type Service struct {
	*localapi.MethodTable
	queues  map[string][]wire.TaskAddRequest
	loggers ldlog.Loggers
	lock    sync.Mutex
}

// NewFactory returns the factory that builds the service from its manifest.
func NewFactory() localapi.Factory {
	return localapi.FactoryFunc{
		Name: wire.TaskQueueService,
		Build: func(m localapi.Manifest, _ string, loggers ldlog.Loggers) (localapi.Service, error) {
			var opts Options
			if err := m.Decode(&opts); err != nil {
				return nil, err
			}
			return New(opts, loggers), nil
		},
	}
}

func New(opts Options, loggers ldlog.Loggers) *Service {
	s := &Service{
		MethodTable: localapi.NewMethodTable(wire.TaskQueueService, loggers),
		queues:      map[string][]wire.TaskAddRequest{wire.DefaultQueueName: nil},
		loggers:     loggers,
	}
	for _, q := range opts.Queues {
		s.queues[q] = nil
	}
	s.Add(wire.MethodAdd, s.add)
	s.Add(wire.MethodPurgeQueue, s.purge)
	s.Add(wire.MethodQueryTasks, s.query)
	return s
}

func (s *Service) Close() error { return nil }

func (s *Service) add(_ context.Context, _ apiproxy.Environment, request []byte) ([]byte, error) {
	task, err := wire.DecodeTaskAddRequest(request)
	if err != nil {
		return nil, localapi.BadRequest(wire.TaskQueueService, wire.MethodAdd, err)
	}
	if task.QueueName == "" {
		task.QueueName = wire.DefaultQueueName
	}
	if task.URL == "" {
		return nil, localapi.BadRequest(wire.TaskQueueService, wire.MethodAdd, fmt.Errorf("task has no URL"))
	}
	if task.TaskName == "" {
		task.TaskName = "task-" + uuid.NewString()
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	tasks, ok := s.queues[task.QueueName]
	if !ok {
		return nil, apiproxy.NewApplicationError(wire.TaskQueueService, wire.MethodAdd, apiproxy.CodeNotFound,
			"unknown queue %q", task.QueueName)
	}
	for _, t := range tasks {
		if t.TaskName == task.TaskName {
			return nil, localapi.BadRequest(wire.TaskQueueService, wire.MethodAdd,
				fmt.Errorf("task %q already exists in queue %q", task.TaskName, task.QueueName))
		}
	}
	tasks = append(tasks, task)
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].ETA.Before(tasks[j].ETA) })
	s.queues[task.QueueName] = tasks
	s.loggers.Debugf("Enqueued %s %s as %q in queue %q", task.Method, task.URL, task.TaskName, task.QueueName)
	return wire.TaskAddResponse{ChosenTaskName: task.TaskName}.Encode(), nil
}

func (s *Service) queue(method string, request []byte) (string, error) {
	req, err := wire.DecodeQueueRequest(request)
	if err != nil {
		return "", localapi.BadRequest(wire.TaskQueueService, method, err)
	}
	name := req.QueueName
	if name == "" {
		name = wire.DefaultQueueName
	}
	if _, ok := s.queues[name]; !ok {
		return "", apiproxy.NewApplicationError(wire.TaskQueueService, method, apiproxy.CodeNotFound,
			"unknown queue %q", name)
	}
	return name, nil
}

func (s *Service) purge(_ context.Context, _ apiproxy.Environment, request []byte) ([]byte, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	name, err := s.queue(wire.MethodPurgeQueue, request)
	if err != nil {
		return nil, err
	}
	s.queues[name] = nil
	return nil, nil
}

func (s *Service) query(_ context.Context, _ apiproxy.Environment, request []byte) ([]byte, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	name, err := s.queue(wire.MethodQueryTasks, request)
	if err != nil {
		return nil, err
	}
	return wire.QueryTasksResponse{Tasks: s.queues[name]}.Encode(), nil
}

// Queues returns the names of the configured queues in sorted order.
func (s *Service) Queues() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return helpers.Sorted(maps.Keys(s.queues))
}

// Len returns the number of tasks waiting in a queue.
func (s *Service) Len(queue string) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.queues[queue])
}
