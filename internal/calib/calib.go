// Package calib loads camera calibration artefacts and builds the projection
// model used by triangulation.
//
// Calibration is produced out of band (chessboard capture for intrinsics, PnP
// for pose) and persisted as JSON files the coordinator reads at startup. A
// node missing either file still streams 2D data; it is only excluded from
// triangulation.
package calib

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
)

// PoseFilePrefix is the filename convention for per-node pose files:
// <prefix>_<node>.json in the calibration directory.
const PoseFilePrefix = "pnp_camera_pose"

// Intrinsics is a camera's optical model: the 3x3 camera matrix and lens
// distortion coefficients.
type Intrinsics struct {
	CameraMatrix [3][3]float64
	Distortion   []float64
}

// Pose is a camera's extrinsic calibration: its orientation (Rodrigues
// rotation vector) and position (translation vector) mapping world
// coordinates into the camera frame.
type Pose struct {
	RotationVector    [3]float64
	TranslationVector [3]float64
}

type intrinsicsFile struct {
	CameraMatrix [][]float64     `json:"camera_matrix"`
	Distortion   json.RawMessage `json:"distortion_coefficients"`
}

type poseFile struct {
	RotationVector    []float64 `json:"rotation_vector"`
	TranslationVector []float64 `json:"translation_vector"`
}

// LoadIntrinsics reads an intrinsic calibration file. The distortion
// coefficients are accepted either flat ([k1,...]) or wrapped in a single row
// ([[k1,...]]), since row-matrix serialisation is common in calibration
// tooling output.
func LoadIntrinsics(path string) (Intrinsics, error) {
	var in Intrinsics

	b, err := os.ReadFile(path)
	if err != nil {
		return in, fmt.Errorf("read intrinsics %s: %w", path, err)
	}
	var f intrinsicsFile
	if err := json.Unmarshal(b, &f); err != nil {
		return in, fmt.Errorf("parse intrinsics %s: %w", path, err)
	}
	if len(f.CameraMatrix) != 3 {
		return in, fmt.Errorf("intrinsics %s: camera_matrix has %d rows, want 3", path, len(f.CameraMatrix))
	}
	for i, row := range f.CameraMatrix {
		if len(row) != 3 {
			return in, fmt.Errorf("intrinsics %s: camera_matrix row %d has %d values, want 3", path, i, len(row))
		}
		copy(in.CameraMatrix[i][:], row)
	}

	if len(f.Distortion) > 0 {
		var flat []float64
		if err := json.Unmarshal(f.Distortion, &flat); err == nil {
			in.Distortion = flat
		} else {
			var rows [][]float64
			if err := json.Unmarshal(f.Distortion, &rows); err != nil || len(rows) != 1 {
				return in, fmt.Errorf("intrinsics %s: unrecognised distortion_coefficients shape", path)
			}
			in.Distortion = rows[0]
		}
	}

	return in, nil
}

// PoseFilePath returns the conventional pose filename for a node.
func PoseFilePath(dir, nodeID string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.json", PoseFilePrefix, nodeID))
}

// LoadPose reads an extrinsic pose file.
func LoadPose(path string) (Pose, error) {
	var p Pose

	b, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read pose %s: %w", path, err)
	}
	var f poseFile
	if err := json.Unmarshal(b, &f); err != nil {
		return p, fmt.Errorf("parse pose %s: %w", path, err)
	}
	if len(f.RotationVector) != 3 || len(f.TranslationVector) != 3 {
		return p, fmt.Errorf("pose %s: rotation/translation must be 3-vectors", path)
	}
	copy(p.RotationVector[:], f.RotationVector)
	copy(p.TranslationVector[:], f.TranslationVector)
	return p, nil
}

// Rodrigues converts a rotation vector to its 3x3 rotation matrix.
//
// The vector's direction is the rotation axis and its magnitude the angle in
// radians. A near-zero vector yields the identity.
func Rodrigues(rvec [3]float64) *mat.Dense {
	theta := math.Sqrt(rvec[0]*rvec[0] + rvec[1]*rvec[1] + rvec[2]*rvec[2])
	r := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})
	if theta < 1e-12 {
		return r
	}

	kx, ky, kz := rvec[0]/theta, rvec[1]/theta, rvec[2]/theta
	k := mat.NewDense(3, 3, []float64{
		0, -kz, ky,
		kz, 0, -kx,
		-ky, kx, 0,
	})

	// R = I + sin(theta)*K + (1-cos(theta))*K^2
	var k2 mat.Dense
	k2.Mul(k, k)

	var sinTerm, cosTerm mat.Dense
	sinTerm.Scale(math.Sin(theta), k)
	cosTerm.Scale(1-math.Cos(theta), &k2)

	r.Add(r, &sinTerm)
	r.Add(r, &cosTerm)
	return r
}

// Camera pairs a node's intrinsics and pose into a usable projection model.
type Camera struct {
	NodeID     string
	Intrinsics Intrinsics
	Pose       Pose
}

// Projection builds the 3x4 projection matrix P = K * [R | t].
func (c Camera) Projection() *mat.Dense {
	k := mat.NewDense(3, 3, []float64{
		c.Intrinsics.CameraMatrix[0][0], c.Intrinsics.CameraMatrix[0][1], c.Intrinsics.CameraMatrix[0][2],
		c.Intrinsics.CameraMatrix[1][0], c.Intrinsics.CameraMatrix[1][1], c.Intrinsics.CameraMatrix[1][2],
		c.Intrinsics.CameraMatrix[2][0], c.Intrinsics.CameraMatrix[2][1], c.Intrinsics.CameraMatrix[2][2],
	})

	r := Rodrigues(c.Pose.RotationVector)
	ext := mat.NewDense(3, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			ext.Set(i, j, r.At(i, j))
		}
		ext.Set(i, 3, c.Pose.TranslationVector[i])
	}

	p := mat.NewDense(3, 4, nil)
	p.Mul(k, ext)
	return p
}

// Project maps a world point through the camera model to pixel coordinates.
// ok is false when the point projects to a degenerate depth (at or behind the
// camera's principal plane), in which case the pixel value is meaningless.
//
// Lens distortion is not applied: nodes undistort frames before detection, so
// both sides of the wire work in undistorted pixel coordinates.
func (c Camera) Project(world [3]float64) (px [2]float64, ok bool) {
	p := c.Projection()
	w := mat.NewVecDense(4, []float64{world[0], world[1], world[2], 1})

	var img mat.VecDense
	img.MulVec(p, w)

	z := img.AtVec(2)
	if math.Abs(z) < 1e-9 {
		return px, false
	}
	px[0] = img.AtVec(0) / z
	px[1] = img.AtVec(1) / z
	return px, z > 0
}

// LoadCameras assembles Camera models for the given nodes from a calibration
// directory. Nodes may carry a per-node intrinsics file
// (<node>_<intrinsicsFile>); otherwise the shared intrinsics file is used.
// Nodes with no usable pose are omitted rather than failing the load: a
// missing pose only disqualifies that node from triangulation.
func LoadCameras(dir, intrinsicsFile string, nodeIDs []string) (map[string]Camera, error) {
	sharedPath := filepath.Join(dir, intrinsicsFile)
	shared, sharedErr := LoadIntrinsics(sharedPath)

	cameras := make(map[string]Camera, len(nodeIDs))
	for _, id := range nodeIDs {
		in := shared
		perNode := filepath.Join(dir, fmt.Sprintf("%s_%s", id, intrinsicsFile))
		if own, err := LoadIntrinsics(perNode); err == nil {
			in = own
		} else if sharedErr != nil {
			// Neither a per-node nor a shared intrinsics file.
			continue
		}

		pose, err := LoadPose(PoseFilePath(dir, id))
		if err != nil {
			continue
		}
		cameras[id] = Camera{NodeID: id, Intrinsics: in, Pose: pose}
	}

	if len(cameras) == 0 && sharedErr != nil {
		return cameras, fmt.Errorf("no usable calibration under %s: %w", dir, sharedErr)
	}
	return cameras, nil
}
