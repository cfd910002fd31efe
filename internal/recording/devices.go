package recording

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pilebones/go-udev/crawler"
	"github.com/pilebones/go-udev/netlink"
)

// Device is an ALSA capture endpoint.
type Device struct {
	// ID is the arecord -D argument, e.g. hw:1,0.
	ID     string `json:"id"`
	Card   int    `json:"card"`
	Device int    `json:"device"`
	Name   string `json:"name,omitempty"`
	// KObj is the sysfs path the device was discovered at.
	KObj string `json:"kobj,omitempty"`
}

var capturePCM = regexp.MustCompile(`^snd/pcmC([0-9]+)D([0-9]+)c$`)

// crawlFunc matches the go-udev crawler entry point so tests can feed
// synthetic sysfs trees.
type crawlFunc func(queue chan crawler.Device, errs chan error, matcher netlink.Matcher) chan struct{}

// deviceLister enumerates capture PCM nodes from sysfs.
type deviceLister struct {
	crawl     crawlFunc
	sysfsRoot string
}

func newDeviceLister() *deviceLister {
	return &deviceLister{crawl: crawler.ExistingDevices, sysfsRoot: "/sys"}
}

func captureMatcher() netlink.Matcher {
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Env: map[string]string{
			"DEVNAME": capturePCM.String(),
		},
	})
	return rules
}

// List walks existing devices and returns capture endpoints ordered by card
// then device number.
func (l *deviceLister) List(ctx context.Context) ([]Device, error) {
	queue := make(chan crawler.Device)
	errs := make(chan error, 1)
	quit := l.crawl(queue, errs, captureMatcher())

	stop := func() {
		close(quit)
		go func() {
			for range queue {
			}
		}()
	}

	seen := make(map[string]struct{})
	var devices []Device
	for {
		select {
		case <-ctx.Done():
			stop()
			return nil, ctx.Err()
		case err := <-errs:
			stop()
			return nil, fmt.Errorf("crawl sysfs: %w", err)
		case dev, ok := <-queue:
			if !ok {
				sortDevices(devices)
				return devices, nil
			}
			parsed, ok := parseDevice(dev)
			if !ok {
				continue
			}
			if _, dup := seen[parsed.ID]; dup {
				continue
			}
			seen[parsed.ID] = struct{}{}
			parsed.Name = l.cardName(parsed.Card)
			devices = append(devices, parsed)
		}
	}
}

func parseDevice(dev crawler.Device) (Device, bool) {
	match := capturePCM.FindStringSubmatch(strings.TrimSpace(dev.Env["DEVNAME"]))
	if match == nil {
		return Device{}, false
	}
	card, err := strconv.Atoi(match[1])
	if err != nil {
		return Device{}, false
	}
	number, err := strconv.Atoi(match[2])
	if err != nil {
		return Device{}, false
	}
	return Device{
		ID:     fmt.Sprintf("hw:%d,%d", card, number),
		Card:   card,
		Device: number,
		KObj:   dev.KObj,
	}, true
}

func (l *deviceLister) cardName(card int) string {
	data, err := os.ReadFile(filepath.Join(l.sysfsRoot, "class", "sound", fmt.Sprintf("card%d", card), "id"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func sortDevices(devices []Device) {
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Card != devices[j].Card {
			return devices[i].Card < devices[j].Card
		}
		return devices[i].Device < devices[j].Device
	})
}
