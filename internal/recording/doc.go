// Package recording captures microphone answers with arecord.
//
// Capture devices are discovered by crawling sysfs for ALSA capture PCM nodes
// (pcmC<card>D<dev>c), which map to arecord's hw:<card>,<dev> names. Only one
// session may run at a time: an in-process slot guards concurrent callers and
// a flock on the state directory guards other quill processes. Audio is
// written to a hidden .partial file and renamed into place once arecord has
// been interrupted and has finalized the WAV header.
package recording
