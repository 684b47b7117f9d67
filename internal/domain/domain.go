package domain

import (
	"github.com/apexlab/apex-backend/internal/domain/athletes"
	"github.com/apexlab/apex-backend/internal/domain/vald"
)

type Athlete = athletes.Athlete
type PlayLevel = athletes.PlayLevel
type CompositeScoreEntry = athletes.CompositeScoreEntry

const (
	PlayLevelYouth      = athletes.PlayLevelYouth
	PlayLevelHighSchool = athletes.PlayLevelHighSchool
	PlayLevelCollege    = athletes.PlayLevelCollege
	PlayLevelPro        = athletes.PlayLevelPro
)

type ProfileQueueItem = vald.ProfileQueueItem
type QueueStatus = vald.QueueStatus

const (
	QueueStatusPending    = vald.QueueStatusPending
	QueueStatusProcessing = vald.QueueStatusProcessing
	QueueStatusCompleted  = vald.QueueStatusCompleted
	QueueStatusFailed     = vald.QueueStatusFailed
)

type TestType = vald.TestType
type TestResult = vald.TestResult

var AllTestTypes = vald.AllTestTypes

type PercentileLookup = vald.PercentileLookup
type AthletePercentileHistory = vald.AthletePercentileHistory

const (
	TestTypeCMJ          = vald.TestTypeCMJ
	TestTypeSJ           = vald.TestTypeSJ
	TestTypeHJ           = vald.TestTypeHJ
	TestTypePPU          = vald.TestTypePPU
	TestTypeIMTP         = vald.TestTypeIMTP
	TestTypeForceProfile = vald.TestTypeForceProfile

	PlayLevelOverall = vald.PlayLevelOverall
)
