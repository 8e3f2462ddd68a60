package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	jobTimeout = 5 * time.Minute
	// 延迟执行首轮任务，避免与用户首次打开页面的请求争抢资源，首屏加载更快
	startupDelay = 15 * time.Second
)

// Job 一个定时任务，Run 返回的错误只记录日志
type Job struct {
	Name     string
	CronSpec string
	Run      func(ctx context.Context) error
}

// StateWriter 记录每个任务最近一次的执行结果，供诊断接口查看
type StateWriter interface {
	SaveState(key, value string) error
}

type Scheduler struct {
	cron  *cron.Cron
	jobs  []Job
	state StateWriter
	// 同一个任务不会并发执行
	running sync.Map
}

func New(state StateWriter, jobs ...Job) (*Scheduler, error) {
	c := cron.New()

	s := &Scheduler{
		cron:  c,
		jobs:  jobs,
		state: state,
	}

	for _, j := range jobs {
		job := j
		if _, err := c.AddFunc(job.CronSpec, func() { s.run(job) }); err != nil {
			return nil, fmt.Errorf("add job %s (%s): %w", job.Name, job.CronSpec, err)
		}
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	time.AfterFunc(startupDelay, func() {
		go s.RunOnce()
	})
}

// Stop 停止调度，返回的 context 在正在执行的任务结束后关闭
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Cron 暴露底层调度器，便于追加临时任务
func (s *Scheduler) Cron() *cron.Cron {
	return s.cron
}

// RunOnce 按注册顺序依次执行所有任务，方便手动触发
func (s *Scheduler) RunOnce() {
	for _, j := range s.jobs {
		s.run(j)
	}
}

func (s *Scheduler) run(job Job) {
	if _, busy := s.running.LoadOrStore(job.Name, struct{}{}); busy {
		log.Printf("job %s still running, skip this round", job.Name)
		return
	}
	defer s.running.Delete(job.Name)

	start := time.Now()
	log.Printf("start job %s...", job.Name)

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		return job.Run(ctx)
	}()

	status := "ok"
	if err != nil {
		status = "error: " + err.Error()
		log.Printf("job %s error: %v", job.Name, err)
	} else {
		log.Printf("job %s done in %s", job.Name, time.Since(start).Round(time.Millisecond))
	}
	if s.state != nil {
		value := fmt.Sprintf("%s %s", start.UTC().Format(time.RFC3339), status)
		if err := s.state.SaveState("job:"+job.Name+":last_run", value); err != nil {
			log.Printf("job %s: save state: %v", job.Name, err)
		}
	}
}
