// Package session 交易日历与会话管理：进入交易窗口时开会话，离开时关闭并保存。
package session

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultLocation 默认时区
const DefaultLocation = "America/Chicago"

// Window 一天内的交易时段，分钟数自 00:00 起；End <= Start 表示跨午夜
type Window struct {
	Start int
	End   int
}

// ParseWindow 解析 "08:30-15:15"
func ParseWindow(s string) (Window, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 {
		return Window{}, fmt.Errorf("invalid window %q", s)
	}
	start, err := parseClock(parts[0])
	if err != nil {
		return Window{}, err
	}
	end, err := parseClock(parts[1])
	if err != nil {
		return Window{}, err
	}
	return Window{Start: start, End: end}, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Overnight 是否跨午夜
func (w Window) Overnight() bool { return w.End <= w.Start }

// Contains minute 为当天分钟数
func (w Window) Contains(minute int) bool {
	if w.Overnight() {
		return minute >= w.Start
	}
	return minute >= w.Start && minute < w.End
}

func (w Window) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.Start/60, w.Start%60, w.End/60, w.End%60)
}

// CalendarConfig yaml 形式：weekday 名称 -> 时段列表
type CalendarConfig struct {
	Location string              `yaml:"location"`
	Windows  map[string][]string `yaml:"windows"`
}

// DefaultCalendarConfig 周一到周五 08:30-15:15（芝加哥时间）
func DefaultCalendarConfig() CalendarConfig {
	day := []string{"08:30-15:15"}
	return CalendarConfig{
		Location: DefaultLocation,
		Windows: map[string][]string{
			"monday": day, "tuesday": day, "wednesday": day, "thursday": day, "friday": day,
		},
	}
}

// Calendar 按星期配置的交易时段
type Calendar struct {
	loc     *time.Location
	windows map[time.Weekday][]Window
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday,
}

// NewCalendar 解析配置
func NewCalendar(cfg CalendarConfig) (*Calendar, error) {
	name := cfg.Location
	if name == "" {
		name = DefaultLocation
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load location %s: %w", name, err)
	}
	c := &Calendar{loc: loc, windows: make(map[time.Weekday][]Window)}
	for day, specs := range cfg.Windows {
		wd, ok := weekdays[strings.ToLower(day)]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", day)
		}
		for _, s := range specs {
			w, err := ParseWindow(s)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", day, err)
			}
			c.windows[wd] = append(c.windows[wd], w)
		}
		sort.Slice(c.windows[wd], func(i, j int) bool { return c.windows[wd][i].Start < c.windows[wd][j].Start })
	}
	return c, nil
}

// AlwaysOpen 全天候日历，测试和连续交易品种使用
func AlwaysOpen() *Calendar {
	c := &Calendar{loc: time.UTC, windows: make(map[time.Weekday][]Window)}
	for _, wd := range weekdays {
		c.windows[wd] = []Window{{Start: 0, End: 0}}
	}
	return c
}

// Location 日历时区
func (c *Calendar) Location() *time.Location { return c.loc }

// Lookup 返回 t 所在的时段及其唯一标识（时段开始的日期+时刻）
func (c *Calendar) Lookup(t time.Time) (Window, string, bool) {
	local := t.In(c.loc)
	minute := local.Hour()*60 + local.Minute()

	for _, w := range c.windows[local.Weekday()] {
		if w.Contains(minute) {
			return w, key(local, w), true
		}
	}
	// 前一天开始的跨夜时段
	prev := local.AddDate(0, 0, -1)
	for _, w := range c.windows[prev.Weekday()] {
		if w.Overnight() && minute < w.End {
			return w, key(prev, w), true
		}
	}
	return Window{}, "", false
}

// Open t 是否处于交易时段
func (c *Calendar) Open(t time.Time) bool {
	_, _, ok := c.Lookup(t)
	return ok
}

func key(day time.Time, w Window) string {
	return day.Format("2006-01-02") + "@" + w.String()
}
