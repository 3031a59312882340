// facerig drives an avatar's face and head from a webcam.
//
// Usage:
//
//	facerig run [--config facerig.yaml] [--source mesh|stream|synthetic] [--port 8090]
//	facerig check-rig [--rig rig.yaml] [--mesh mesh.json]
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
