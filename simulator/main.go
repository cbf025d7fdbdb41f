package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/sync/errgroup"

	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/observability"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/rpc"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/wellness"
)

// simulator drives the api with a population of employees chatting,
// checking in and logging activity.
type settings struct {
	APIURL      string `envconfig:"API_URL" default:"http://api:8080"`
	RatePerSec  int    `envconfig:"RATE_PER_SEC" default:"1"`
	Concurrency int    `envconfig:"CONCURRENCY" default:"1"`
	Employees   int    `envconfig:"EMPLOYEES" default:"50"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
}

var moods = []string{"happy", "calm", "tired", "stressed", "anxious", "frustrated"}

func main() {
	var s settings
	if err := envconfig.Process("", &s); err != nil {
		slog.Error("failed to load settings", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(s.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := rpc.NewClient(s.APIURL, nil)

	ids := make([]string, s.Employees)
	for i := range ids {
		ids[i] = fmt.Sprintf("SIM%04d", i+1)
		_, err := client.RegisterEmployee(ctx, wellness.Profile{
			EmpID: ids[i],
			Name:  fmt.Sprintf("Sim Employee %d", i+1),
			Email: fmt.Sprintf("sim%04d@example.com", i+1),
			Dept:  []string{"Engineering", "Sales", "Support"}[i%3],
		})
		if err != nil {
			logger.Error("failed to register employee", "emp_id", ids[i], "error", err)
		}
	}
	logger.Info("employees registered", "count", len(ids))

	concurrency := max(s.Concurrency, 1)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			submitLoop(ctx, client, ids, s.RatePerSec/concurrency, logger)
			return nil
		})
	}
	_ = g.Wait()
}

func submitLoop(ctx context.Context, c *rpc.Client, ids []string, rps int, logger *slog.Logger) {
	interval := time.Second
	if rps > 0 {
		interval = time.Second / time.Duration(rps)
	}
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		empID := ids[rand.IntN(len(ids))]
		if err := act(ctx, c, empID); err != nil {
			logger.Warn("simulated request failed", "emp_id", empID, "error", err)
		}
	}
}

func act(ctx context.Context, c *rpc.Client, empID string) error {
	switch n := rand.IntN(10); {
	case n < 6:
		score := rand.IntN(101)
		resp, err := c.SubmitChatEvent(ctx, rpc.SubmitChatEventRequest{
			EmpID:            empID,
			CurrentMood:      moods[rand.IntN(len(moods))],
			IsEscalated:      score < 10,
			WellnessScore:    &score,
			MoodScorePercent: fmt.Sprintf("%d%%", score),
			UserChat:         "simulated message",
			BotChat:          "simulated reply",
		})
		if err == nil {
			slog.Debug("chat event submitted", "emp_id", empID, "job_id", resp.JobID)
		}
		return err
	case n < 8:
		return c.CheckIn(ctx, rpc.CheckInRequest{EmpID: empID})
	case n < 9:
		hours := 30 + rand.IntN(30)
		return c.RecordActivity(ctx, rpc.ActivityRequest{
			EmpID:            empID,
			TeamMessages:     rand.IntN(40),
			EmailsSent:       rand.IntN(20),
			MeetingsAttended: rand.IntN(8),
			WorkHours:        &hours,
		})
	default:
		_, err := c.ScheduleNotification(ctx, rpc.ScheduleNotificationRequest{
			EmpID:        empID,
			EmailAddress: fmt.Sprintf("%s@example.com", empID),
			Message:      "Remember to take a short break today.",
			Timestamp:    time.Now().Add(time.Duration(rand.IntN(60)) * time.Second).Unix(),
		})
		return err
	}
}
