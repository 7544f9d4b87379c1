// Package metaxml downloads and parses the per-panorama metadata XML that
// declares image dimensions, zoom levels and the projection.
package metaxml

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"

	"github.com/withObsrvr/obsrvr-pano-scraper/internal/panorama"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/storage"
)

// ErrNoDataProperties is returned for metadata without a data_properties
// element, which the provider serves for panoramas it no longer has.
var ErrNoDataProperties = errors.New("metaxml: missing data_properties")

// Metadata is the subset of the panorama metadata document this tool reads.
type Metadata struct {
	XMLName xml.Name       `xml:"panorama"`
	Data    DataProperties `xml:"data_properties"`
	Proj    Projection     `xml:"projection_properties"`
}

// DataProperties describes the image pyramid.
type DataProperties struct {
	PanoID        string  `xml:"pano_id,attr"`
	ImageWidth    int     `xml:"image_width,attr"`
	ImageHeight   int     `xml:"image_height,attr"`
	TileWidth     int     `xml:"tile_width,attr"`
	TileHeight    int     `xml:"tile_height,attr"`
	NumZoomLevels int     `xml:"num_zoom_levels,attr"`
	Lat           float64 `xml:"lat,attr"`
	Lng           float64 `xml:"lng,attr"`
	ImageDate     string  `xml:"image_date,attr"`
	Copyright     string  `xml:"copyright"`
}

// Projection describes the panorama's orientation.
type Projection struct {
	Type      string  `xml:"projection_type,attr"`
	YawDeg    float64 `xml:"pano_yaw_deg,attr"`
	TiltYaw   float64 `xml:"tilt_yaw_deg,attr"`
	TiltPitch float64 `xml:"tilt_pitch_deg,attr"`
}

// Parse decodes a metadata document.
func Parse(data []byte) (*Metadata, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrNoDataProperties
	}

	var m Metadata
	if err := xml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse metadata xml: %w", err)
	}
	if m.Data.ImageWidth <= 0 || m.Data.ImageHeight <= 0 {
		return nil, ErrNoDataProperties
	}
	return &m, nil
}

// Descriptor returns the zoom and dimensions the metadata declares.
func (m *Metadata) Descriptor() *panorama.Descriptor {
	return &panorama.Descriptor{
		Zoom:   m.Data.NumZoomLevels,
		Width:  m.Data.ImageWidth,
		Height: m.Data.ImageHeight,
	}
}

// Load reads the stored metadata of id. It returns nil without error when no
// metadata has been downloaded.
func Load(ctx context.Context, store storage.Store, id panorama.ID) (*Metadata, error) {
	data, err := store.Read(ctx, storage.DescriptorKey(string(id)))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return Parse(data)
}
