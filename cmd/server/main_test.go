package main

import (
	"testing"
	"time"
)

func TestNextMonthStart(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "月中启动等到下月初",
			now:  time.Date(2026, 9, 15, 10, 0, 0, 0, time.UTC),
			want: time.Date(2026, 10, 1, 0, 5, 0, 0, time.UTC),
		},
		{
			name: "跨年滚动",
			now:  time.Date(2026, 12, 20, 8, 0, 0, 0, time.UTC),
			want: time.Date(2027, 1, 1, 0, 5, 0, 0, time.UTC),
		},
		{
			name: "月初触发时刻之前启动当天仍触发",
			now:  time.Date(2026, 9, 1, 0, 1, 0, 0, time.UTC),
			want: time.Date(2026, 9, 1, 0, 5, 0, 0, time.UTC),
		},
		{
			name: "恰好在触发时刻不重复触发",
			now:  time.Date(2026, 9, 1, 0, 5, 0, 0, time.UTC),
			want: time.Date(2026, 10, 1, 0, 5, 0, 0, time.UTC),
		},
		{
			name: "月末深夜不会漂移跳过触发日",
			now:  time.Date(2026, 9, 30, 23, 59, 0, 0, time.UTC),
			want: time.Date(2026, 10, 1, 0, 5, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextMonthStart(tt.now)
			if !got.Equal(tt.want) {
				t.Errorf("期望%v，实际=%v", tt.want, got)
			}
		})
	}
}
