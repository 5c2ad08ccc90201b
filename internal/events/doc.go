// Package events provides a small in-process pub-sub hub.
//
// Components publish instance changes, guard transitions, and log lines;
// WebSocket sessions subscribe and forward them to the UI. Publishing never
// blocks: a subscriber that cannot keep up drops events.
package events
