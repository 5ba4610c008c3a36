package matching

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestAdmit_Gates(t *testing.T) {
	trust := newStubTrust()
	inSession := entry(YearThird, GenderFemale, YearRandom, GenderAny)
	opener := &stubOpener{
		inSession: map[uuid.UUID]string{inSession.UserID: uuid.NewString()},
	}
	svc := NewService(trust, opener, nil, nil)
	defer svc.Stop()

	e := entry(YearSecond, GenderMale, YearRandom, GenderAny)
	if code := svc.admit(e); code != "" {
		t.Fatalf("clean request rejected with %q", code)
	}
	if code := svc.admit(e); code != RejectAlreadyWaiting {
		t.Errorf("duplicate request: code = %q, want %q", code, RejectAlreadyWaiting)
	}

	banned := entry(YearSecond, GenderMale, YearRandom, GenderAny)
	trust.suspended[banned.UserID] = true
	if code := svc.admit(banned); code != RejectSuspended {
		t.Errorf("suspended user: code = %q, want %q", code, RejectSuspended)
	}

	if code := svc.admit(inSession); code != RejectAlreadyInSession {
		t.Errorf("user in session: code = %q, want %q", code, RejectAlreadyInSession)
	}
}

func TestAdmit_StorageOutageRejectsUnavailable(t *testing.T) {
	e := entry(YearSecond, GenderMale, YearRandom, GenderAny)

	trust := newStubTrust()
	trust.err = errors.New("dial tcp: connection refused")
	svc := NewService(trust, &stubOpener{}, nil, nil)
	defer svc.Stop()
	if code := svc.admit(e); code != RejectUnavailable {
		t.Errorf("trust store outage: code = %q, want %q", code, RejectUnavailable)
	}

	svc2 := NewService(newStubTrust(), &stubOpener{lookupErr: errors.New("redis: connection pool timeout")}, nil, nil)
	defer svc2.Stop()
	if code := svc2.admit(e); code != RejectUnavailable {
		t.Errorf("session store outage: code = %q, want %q", code, RejectUnavailable)
	}
	if svc2.pool.Contains(e.UserID) {
		t.Error("a rejected request must not enter the pool")
	}
}
