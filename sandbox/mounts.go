package sandbox

import "github.com/docker/docker/api/types/mount"

// volumeMounts builds the bind of the shared scratch volume into the
// sandbox, read-only, per SPEC_FULL.md §4.3.
func volumeMounts(spec CreateSpec) []mount.Mount {
	if spec.VolumeName == "" {
		return nil
	}
	return []mount.Mount{
		{
			Type:     mount.TypeVolume,
			Source:   spec.VolumeName,
			Target:   spec.Mount,
			ReadOnly: true,
		},
	}
}
