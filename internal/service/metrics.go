package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesAppendedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "market_messages_appended_total",
			Help: "Total number of messages appended to conversations",
		},
	)

	conversationsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_conversations_created_total",
			Help: "Get-or-create outcomes for conversations (created, existing, race)",
		},
		[]string{"result"},
	)

	authLoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "market_auth_logins_total",
			Help: "Login attempts by result",
		},
		[]string{"result"},
	)
)

const (
	resultCreated  = "created"
	resultExisting = "existing"
	resultRace     = "race"
	resultSuccess  = "success"
	resultFailure  = "failure"
)
