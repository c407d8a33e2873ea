package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mcdev12/reelboard/go/internal/activity"
	"github.com/mcdev12/reelboard/go/internal/config"
)

func TestRabbitMQConfigStartsFromDefaults(t *testing.T) {
	def := activity.DefaultRabbitMQConfig()

	assert.Equal(t, def, rabbitMQConfig(config.ActivityConfig{}))

	got := rabbitMQConfig(config.ActivityConfig{Exchange: "movies.activity"})
	assert.Equal(t, def.URL, got.URL)
	assert.Equal(t, "movies.activity", got.Exchange)

	got = rabbitMQConfig(config.ActivityConfig{RabbitMQURL: "amqp://board:secret@mq:5672/"})
	assert.Equal(t, "amqp://board:secret@mq:5672/", got.URL)
	assert.Equal(t, def.Exchange, got.Exchange)
}
