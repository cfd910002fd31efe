// Package audioprobe reports duration, format and sample rate of audio
// artifacts for the dataset snapshot.
package audioprobe
