package mq

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/job"
)

func TestQueueName(t *testing.T) {
	assert.Equal(t, "jobs.queue.notification", QueueName(job.TypeNotification))
	assert.Equal(t, "jobs.queue.daily_boundary", QueueName(job.TypeDailyBoundary))

	seen := map[string]bool{}
	for _, jt := range job.Types {
		name := QueueName(jt)
		assert.False(t, seen[name], "queue %s declared twice", name)
		seen[name] = true
	}
}
