package scheduling

import (
	"fmt"
	"strings"
	"time"

	domain "github.com/GuilhermeDesoler/BACK-TURISMO/internal/domain"
)

// GroupKey identifies one bookable slot of one team on one day.
type GroupKey struct {
	Date   string
	TeamID string
	Slot   string
}

// String renders the key as date|team|slot.
func (k GroupKey) String() string {
	return k.Date + "|" + k.TeamID + "|" + k.Slot
}

// ScheduleGroup collects the order items that collapse into a single schedule.
type ScheduleGroup struct {
	Key      GroupKey
	Date     time.Time
	TeamID   string
	TimeSlot string
	Services []domain.ScheduleService
}

// GroupItems partitions order items by (scheduled date, team, slot). Groups keep the order in which
// their key was first seen and accumulate every item's service reference.
func GroupItems(items []domain.OrderItem, loc *time.Location) ([]ScheduleGroup, error) {
	groups := make([]ScheduleGroup, 0, len(items))
	index := make(map[GroupKey]int, len(items))

	for i, item := range items {
		date, err := ParseDate(item.ScheduledDate, loc)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		key := GroupKey{
			Date:   FormatDate(date),
			TeamID: strings.TrimSpace(item.TeamID),
			Slot:   strings.TrimSpace(item.TimeSlot),
		}
		service := domain.ScheduleService{
			ServiceID:   item.ServiceID,
			ServiceName: item.ServiceName,
		}
		if pos, ok := index[key]; ok {
			groups[pos].Services = append(groups[pos].Services, service)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, ScheduleGroup{
			Key:      key,
			Date:     date,
			TeamID:   key.TeamID,
			TimeSlot: key.Slot,
			Services: []domain.ScheduleService{service},
		})
	}

	return groups, nil
}
