package Controllers

import (
	"math"
	"sort"
	"time"

	"Workbench/Models"
)

const recentCompletedLimit = 10

type statusCount struct {
	Status Models.TaskStatus `json:"status"`
	Count  int               `json:"count"`
}

type typeCount struct {
	Type  Models.TaskType `json:"type"`
	Count int             `json:"count"`
}

// Performance aggregates delivered tasks. Times are whole minutes.
type Performance struct {
	AvgAllocatedTime int `json:"avgAllocatedTime"`
	AvgActualTime    int `json:"avgActualTime"`
	EarlyCount       int `json:"earlyCount"`
	OnTimeCount      int `json:"onTimeCount"`
	LateCount        int `json:"lateCount"`
	Efficiency       int `json:"efficiency"`
}

type groupPerformance struct {
	Project        *Models.ProjectRef `json:"project,omitempty"`
	User           *Models.UserRef    `json:"user,omitempty"`
	TotalTasks     int                `json:"totalTasks"`
	CompletedTasks int                `json:"completedTasks"`
	OnTimeRate     float64            `json:"onTimeRate"`
}

type completedTaskDetail struct {
	ID                  string             `json:"id"`
	Title               string             `json:"title"`
	Project             *Models.ProjectRef `json:"project"`
	AllocatedMinutes    int                `json:"allocatedMinutes"`
	ActualMinutes       int                `json:"actualMinutes"`
	Variance            int                `json:"variance"`
	StartTime           time.Time          `json:"startTime"`
	EndTime             time.Time          `json:"endTime"`
	ActualStartTime     time.Time          `json:"actualStartTime"`
	ActualCompletedTime time.Time          `json:"actualCompletedTime"`
	DeliveryStatus      string             `json:"deliveryStatus"`
	ReviewStatus        string             `json:"reviewStatus"`
}

// delivered reports whether t counts towards performance: done and with
// both actual timestamps recorded.
func delivered(t Models.Task) bool {
	return t.Status.Done() && t.ActualStartTime != nil && t.ActualCompletedTime != nil
}

func onTime(t Models.Task) bool {
	return !t.ActualCompletedTime.After(t.EndTime)
}

func deliveredTasks(tasks []Models.Task) []Models.Task {
	out := make([]Models.Task, 0, len(tasks))
	for _, t := range tasks {
		if delivered(t) {
			out = append(out, t)
		}
	}
	return out
}

func byStatus(tasks []Models.Task) []statusCount {
	counts := make(map[Models.TaskStatus]int)
	for _, t := range tasks {
		counts[t.Status]++
	}
	statuses := []Models.TaskStatus{
		Models.TaskStatusPending,
		Models.TaskStatusInProgress,
		Models.TaskStatusCompleted,
		Models.TaskStatusReviewed,
	}
	out := make([]statusCount, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, statusCount{Status: s, Count: counts[s]})
	}
	return out
}

func byType(tasks []Models.Task) []typeCount {
	counts := make(map[Models.TaskType]int)
	for _, t := range tasks {
		counts[t.Type]++
	}
	return []typeCount{
		{Type: Models.TaskTypeFeature, Count: counts[Models.TaskTypeFeature]},
		{Type: Models.TaskTypeBug, Count: counts[Models.TaskTypeBug]},
	}
}

// completionRate is the share of done tasks in percent, two decimals.
func completionRate(tasks []Models.Task) float64 {
	if len(tasks) == 0 {
		return 0
	}
	done := 0
	for _, t := range tasks {
		if t.Status.Done() {
			done++
		}
	}
	return round2(float64(done) / float64(len(tasks)) * 100)
}

func onTimeRate(delivered []Models.Task) float64 {
	if len(delivered) == 0 {
		return 0
	}
	count := 0
	for _, t := range delivered {
		if onTime(t) {
			count++
		}
	}
	return round2(float64(count) / float64(len(delivered)) * 100)
}

// performance expects delivered tasks only.
func performance(delivered []Models.Task) Performance {
	var p Performance
	if len(delivered) == 0 {
		return p
	}

	var allocated, actual float64
	for _, t := range delivered {
		allocated += t.Duration().Minutes()
		actual += t.ActualCompletedTime.Sub(*t.ActualStartTime).Minutes()

		switch {
		case t.ActualCompletedTime.Before(t.EndTime):
			p.EarlyCount++
			p.OnTimeCount++
		case t.ActualCompletedTime.Equal(t.EndTime):
			p.OnTimeCount++
		default:
			p.LateCount++
		}
	}

	n := float64(len(delivered))
	avgAllocated, avgActual := allocated/n, actual/n
	p.AvgAllocatedTime = int(math.Round(avgAllocated))
	p.AvgActualTime = int(math.Round(avgActual))
	if avgActual > 0 {
		p.Efficiency = int(math.Round(avgAllocated / avgActual * 100))
	}
	return p
}

// groupBy splits tasks by key and reports per-group delivery. Groups are
// ordered by task count, largest first. Tasks with an empty key are
// left out.
func groupBy(tasks []Models.Task, key func(Models.Task) string, describe func(*groupPerformance, Models.Task)) []groupPerformance {
	index := make(map[string]int)
	var groups []groupPerformance
	var done [][]Models.Task

	for _, t := range tasks {
		k := key(t)
		if k == "" {
			continue
		}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, groupPerformance{})
			describe(&groups[i], t)
			done = append(done, nil)
		}
		groups[i].TotalTasks++
		if delivered(t) {
			done[i] = append(done[i], t)
		}
	}

	for i := range groups {
		groups[i].CompletedTasks = len(done[i])
		groups[i].OnTimeRate = onTimeRate(done[i])
	}
	sort.SliceStable(groups, func(a, b int) bool {
		return groups[a].TotalTasks > groups[b].TotalTasks
	})
	if groups == nil {
		groups = []groupPerformance{}
	}
	return groups
}

func byProject(tasks []Models.Task) []groupPerformance {
	return groupBy(tasks,
		func(t Models.Task) string { return t.ProjectID },
		func(g *groupPerformance, t Models.Task) {
			g.Project = t.Project.Ref()
			if g.Project == nil {
				g.Project = &Models.ProjectRef{ID: t.ProjectID}
			}
		},
	)
}

func byAssignee(tasks []Models.Task) []groupPerformance {
	return groupBy(tasks,
		func(t Models.Task) string { return Models.StringValue(t.AssignedToID) },
		func(g *groupPerformance, t Models.Task) {
			g.User = t.AssignedTo.Ref()
			if g.User == nil {
				g.User = &Models.UserRef{ID: *t.AssignedToID}
			}
		},
	)
}

// recentCompleted details the latest delivered tasks, newest first.
func recentCompleted(delivered []Models.Task, limit int) []completedTaskDetail {
	sorted := make([]Models.Task, len(delivered))
	copy(sorted, delivered)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].ActualCompletedTime.After(*sorted[b].ActualCompletedTime)
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}

	out := make([]completedTaskDetail, 0, len(sorted))
	for _, t := range sorted {
		allocated := t.Duration().Minutes()
		actual := t.ActualCompletedTime.Sub(*t.ActualStartTime).Minutes()

		detail := completedTaskDetail{
			ID:                  t.ID,
			Title:               t.Title,
			Project:             t.Project.Ref(),
			AllocatedMinutes:    int(math.Round(allocated)),
			ActualMinutes:       int(math.Round(actual)),
			Variance:            int(math.Round(actual - allocated)),
			StartTime:           t.StartTime,
			EndTime:             t.EndTime,
			ActualStartTime:     *t.ActualStartTime,
			ActualCompletedTime: *t.ActualCompletedTime,
			DeliveryStatus:      "Late",
			ReviewStatus:        "Pending Review",
		}
		if onTime(t) {
			detail.DeliveryStatus = "On Time"
		}
		if t.Status == Models.TaskStatusReviewed {
			detail.ReviewStatus = "Reviewed"
		}
		out = append(out, detail)
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
