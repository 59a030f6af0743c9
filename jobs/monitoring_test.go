package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hibiken/asynq"
)

type fakeInspector struct {
	infos   map[string]*asynq.QueueInfo
	servers []*asynq.ServerInfo
	err     error
}

func (f *fakeInspector) Queues() ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	names := make([]string, 0, len(f.infos))
	for name := range f.infos {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeInspector) GetQueueInfo(qname string) (*asynq.QueueInfo, error) {
	info, ok := f.infos[qname]
	if !ok {
		return nil, fmt.Errorf("queue %q not found", qname)
	}
	return info, nil
}

func (f *fakeInspector) Servers() ([]*asynq.ServerInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.servers, nil
}

func TestMonitoringJobHandleHealthCheck(t *testing.T) {
	job := NewMonitoringJob(testRedis(t), &fakeInspector{}, testMetrics(t), testLogger())
	task := mustTask(NewHealthCheckTask())
	if err := job.HandleHealthCheck(context.Background(), task); err != nil {
		t.Fatalf("HandleHealthCheck: %v", err)
	}
}

func TestMonitoringJobHandleQueueMetrics(t *testing.T) {
	insp := &fakeInspector{infos: map[string]*asynq.QueueInfo{
		QueueEmail:      {Queue: QueueEmail, Pending: 12, Active: 2},
		QueueProcessing: {Queue: QueueProcessing, Pending: 40, Active: 4},
	}}
	job := NewMonitoringJob(testRedis(t), insp, testMetrics(t), testLogger())
	task := mustTask(NewQueueMetricsTask())
	if err := job.HandleQueueMetrics(context.Background(), task); err != nil {
		t.Fatalf("HandleQueueMetrics: %v", err)
	}
}

func TestMonitoringJobHandleQueueMetricsInspectorDown(t *testing.T) {
	insp := &fakeInspector{err: errors.New("redis gone")}
	job := NewMonitoringJob(testRedis(t), insp, testMetrics(t), testLogger())
	task := mustTask(NewQueueMetricsTask())
	if err := job.HandleQueueMetrics(context.Background(), task); err == nil {
		t.Fatal("want error when inspector is unavailable")
	}
}

func TestMonitoringJobHandleWorkerStats(t *testing.T) {
	insp := &fakeInspector{servers: []*asynq.ServerInfo{
		{ID: "srv-1", Host: "worker-a", PID: 100, Concurrency: 10,
			Queues:        map[string]int{QueueEmail: 3, QueueProcessing: 4},
			Status:        "active",
			ActiveWorkers: []*asynq.WorkerInfo{{TaskID: "t1"}, {TaskID: "t2"}}},
		{ID: "srv-2", Host: "worker-b", PID: 200, Concurrency: 10, Status: "active"},
	}}
	job := NewMonitoringJob(testRedis(t), insp, testMetrics(t), testLogger())
	task := mustTask(NewWorkerStatsTask())
	if err := job.HandleWorkerStats(context.Background(), task); err != nil {
		t.Fatalf("HandleWorkerStats: %v", err)
	}
}

func TestMonitoringJobHandleWorkerStatsInspectorDown(t *testing.T) {
	insp := &fakeInspector{err: errors.New("redis gone")}
	job := NewMonitoringJob(testRedis(t), insp, testMetrics(t), testLogger())
	task := mustTask(NewWorkerStatsTask())
	if err := job.HandleWorkerStats(context.Background(), task); err == nil {
		t.Fatal("want error when inspector is unavailable")
	}
}

func TestMonitoringJobHandleAlertCheck(t *testing.T) {
	insp := &fakeInspector{infos: map[string]*asynq.QueueInfo{
		QueueEmail: {Queue: QueueEmail, Pending: 5000},
	}}
	job := NewMonitoringJob(testRedis(t), insp, testMetrics(t), testLogger())
	task := mustTask(NewAlertCheckTask(AlertThresholds{MaxQueueLength: 100}))
	if err := job.HandleAlertCheck(context.Background(), task); err != nil {
		t.Fatalf("HandleAlertCheck: %v", err)
	}
}

func TestEvaluateAlerts(t *testing.T) {
	thresholds := AlertThresholds{MaxQueueLength: 100, MaxFailedPerQueue: 10, MinActiveQueues: 1}

	t.Run("quiet queues raise nothing", func(t *testing.T) {
		stats := []QueueStats{{Queue: QueueEmail, Pending: 5}}
		if alerts := evaluateAlerts(stats, thresholds); len(alerts) != 0 {
			t.Fatalf("got %d alerts, want 0", len(alerts))
		}
	})

	t.Run("backlog warning", func(t *testing.T) {
		stats := []QueueStats{{Queue: QueueEmail, Pending: 150}}
		alerts := evaluateAlerts(stats, thresholds)
		if len(alerts) != 1 {
			t.Fatalf("got %d alerts, want 1", len(alerts))
		}
		if alerts[0].Type != AlertQueueBacklog || alerts[0].Severity != SeverityWarning {
			t.Fatalf("alert = %+v", alerts[0])
		}
	})

	t.Run("deep backlog escalates to critical", func(t *testing.T) {
		stats := []QueueStats{{Queue: QueueProcessing, Pending: 500}}
		alerts := evaluateAlerts(stats, thresholds)
		if len(alerts) != 1 || alerts[0].Severity != SeverityCritical {
			t.Fatalf("alerts = %+v", alerts)
		}
	})

	t.Run("failed tasks", func(t *testing.T) {
		stats := []QueueStats{{Queue: QueueEmail, Failed: 25}}
		alerts := evaluateAlerts(stats, thresholds)
		if len(alerts) != 1 || alerts[0].Type != AlertTaskFailures {
			t.Fatalf("alerts = %+v", alerts)
		}
		if alerts[0].Current != 25 || alerts[0].Threshold != 10 {
			t.Fatalf("alert = %+v", alerts[0])
		}
	})

	t.Run("paused queue is critical and counts against active minimum", func(t *testing.T) {
		stats := []QueueStats{{Queue: QueueEmail, Paused: true}}
		alerts := evaluateAlerts(stats, thresholds)
		if len(alerts) != 2 {
			t.Fatalf("got %d alerts, want paused + active-minimum", len(alerts))
		}
		for _, a := range alerts {
			if a.Severity != SeverityCritical {
				t.Fatalf("alert = %+v, want critical", a)
			}
		}
	})
}

func TestMonitoringJobHandleReport(t *testing.T) {
	insp := &fakeInspector{infos: map[string]*asynq.QueueInfo{
		QueueEmail:      {Queue: QueueEmail, Pending: 3, Active: 1, Processed: 90, Failed: 2},
		QueueMonitoring: {Queue: QueueMonitoring, Pending: 1, Processed: 50},
	}}
	job := NewMonitoringJob(testRedis(t), insp, testMetrics(t), testLogger())
	task := mustTask(NewReportTask("daily"))
	if err := job.HandleReport(context.Background(), task); err != nil {
		t.Fatalf("HandleReport: %v", err)
	}
}
