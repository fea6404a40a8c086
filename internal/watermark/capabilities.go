// Package watermark decides whether an incoming upload gets watermarked and,
// if so, produces the replacement: guards, classification, the image and
// video transforms, and the interception point that substitutes the result
// into the request. Every failure is fail-open: the original upload proceeds.
package watermark

// Probe reports whether an engine can run. Probes must not panic or block
// for long; absence is a normal false.
type Probe interface {
	Available() bool
}

// Capabilities records which engines were found when the process started.
// The value is computed once and never refreshed; installing ffmpeg later
// requires a restart.
type Capabilities struct {
	Image bool
	Video bool
}

// DetectCapabilities probes both engines once. A nil probe counts as absent.
func DetectCapabilities(image, video Probe) Capabilities {
	return Capabilities{
		Image: probe(image),
		Video: probe(video),
	}
}

func probe(p Probe) (ok bool) {
	if p == nil {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return p.Available()
}
