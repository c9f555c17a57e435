package workoutlog

import (
	"context"
	"sort"
)

type repoMock struct {
	logs map[string]*Log
}

func NewMockLogsRepo() *repoMock {
	return &repoMock{
		logs: make(map[string]*Log),
	}
}

func (r *repoMock) Add(_ context.Context, workoutLog Log) (*Log, bool, error) {
	if existing, ok := r.logs[workoutLog.ID]; ok {
		return existing, false, nil
	}
	r.logs[workoutLog.ID] = &workoutLog
	return &workoutLog, true, nil
}

func (r *repoMock) Get(_ context.Context, id string) (*Log, error) {
	workoutLog, ok := r.logs[id]
	if !ok {
		return nil, ErrLogNotFound
	}
	return workoutLog, nil
}

func (r *repoMock) Delete(_ context.Context, id string) error {
	if _, ok := r.logs[id]; !ok {
		return ErrLogNotFound
	}
	delete(r.logs, id)
	return nil
}

func (r *repoMock) Share(ctx context.Context, id string, postID int) error {
	workoutLog, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if workoutLog.IsShared {
		return ErrAlreadyShared
	}
	workoutLog.IsShared = true
	workoutLog.SharedPostID = &postID
	return nil
}

func (r *repoMock) Unshare(ctx context.Context, id string) error {
	workoutLog, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if !workoutLog.IsShared {
		return ErrNotShared
	}
	workoutLog.IsShared = false
	workoutLog.SharedPostID = nil
	return nil
}

func (r *repoMock) matching(params LogParams) []Log {
	var logs []Log
	for _, l := range r.logs {
		if l.UserID != params.UserID {
			continue
		}
		if params.WorkoutType != "" && l.Type != params.WorkoutType {
			continue
		}
		if params.SharedOnly && !l.IsShared {
			continue
		}
		if params.From != nil && l.WorkoutDate.Before(*params.From) {
			continue
		}
		if params.To != nil && l.WorkoutDate.After(*params.To) {
			continue
		}
		logs = append(logs, *l)
	}
	sort.Slice(logs, func(i, j int) bool {
		return logs[i].WorkoutDate.After(logs[j].WorkoutDate)
	})
	return logs
}

func (r *repoMock) ListAll(_ context.Context, params LogParams) ([]Log, error) {
	return r.matching(params), nil
}

func (r *repoMock) List(_ context.Context, params ListParams) ([]Log, int, error) {
	logs := r.matching(params.LogParams)
	total := len(logs)

	offset := (params.Page - 1) * params.Size
	if offset >= total {
		return []Log{}, total, nil
	}
	end := offset + params.Size
	if end > total {
		end = total
	}
	return logs[offset:end], total, nil
}

func (r *repoMock) LogsCount(_ context.Context, params LogParams) (int, error) {
	return len(r.matching(params)), nil
}
