// Package notify builds and delivers slotwatch chat messages: one heartbeat
// when the process starts, one alert per month that has openings.
package notify

import (
	"fmt"
	"strings"
)

// Kind tells a heartbeat from an alert.
type Kind string

const (
	KindHeartbeat Kind = "heartbeat"
	KindAlert     Kind = "alert"
)

// Embed colors.
const (
	ColorInfo  = 0x0000ff // blue
	ColorAlert = 0x00ff00 // green
)

// Field is a name/value pair rendered under the message body.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Message is one notification. It has no identity beyond a single delivery.
type Message struct {
	Kind        Kind     `json:"kind"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Color       int      `json:"color"`
	Fields      []Field  `json:"fields,omitempty"`
	Month       string   `json:"month,omitempty"`
	Dates       []string `json:"dates,omitempty"`
}

// Heartbeat is the startup message.
func Heartbeat() Message {
	return Message{
		Kind:        KindHeartbeat,
		Title:       "Checker Script Started!",
		Description: "Successfully connected. I will now monitor for visa appointments.",
		Color:       ColorInfo,
	}
}

// Alert reports openings in one month. dates are kept in the given order.
func Alert(month string, dates []string, bookingURL string) Message {
	m := Message{
		Kind:        KindAlert,
		Title:       "Visa Appointment Available!",
		Description: fmt.Sprintf("Found openings in %s on the following dates: **%s**", month, JoinDates(dates)),
		Color:       ColorAlert,
		Month:       month,
		Dates:       append([]string(nil), dates...),
	}
	if bookingURL != "" {
		m.Fields = []Field{{Name: "Link", Value: fmt.Sprintf("[Book Now](%s)", bookingURL)}}
	}
	return m
}

// JoinDates renders dates as "3, 14".
func JoinDates(dates []string) string {
	return strings.Join(dates, ", ")
}
