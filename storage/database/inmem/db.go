package inmemdb

import (
	"sync"

	"github.com/google/uuid"

	"github.com/trezcool/hazira/core/attendance"
	"github.com/trezcool/hazira/core/session"
)

type (
	DB struct {
		session    *sessionTable
		attendance *attendanceTable
	}

	sessionTable struct {
		sync.RWMutex
		table   map[uuid.UUID]*session.Session
		byToken map[string]uuid.UUID
	}

	attendanceTable struct {
		sync.RWMutex
		records  []attendance.Record
		manual   []attendance.ManualEntry
		attempts []attendance.InvalidAttempt
	}
)

func Open() *DB {
	return &DB{
		session: &sessionTable{
			table:   make(map[uuid.UUID]*session.Session),
			byToken: make(map[string]uuid.UUID),
		},
		attendance: &attendanceTable{},
	}
}
