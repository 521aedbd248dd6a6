package models

// Viewport is the visible slice of the candle series. Bars [StartIndex,
// EndIndex) are shown.
type Viewport struct {
	VisibleBarCount   int   `json:"visibleBarCount"`
	StartIndex        int   `json:"startIndex"`
	EndIndex          int   `json:"endIndex"`
	PinnedToEnd       bool  `json:"pinnedToEnd"`
	VisibleDays       int   `json:"visibleDays"`
	SliderMaxDays     int   `json:"sliderMaxDays"`
	VisibleDayOptions []int `json:"visibleDayOptions"`
}
