package exports

import (
	"encoding/json"
	"fmt"

	"github.com/JaimeStill/canopy/pkg/arcgis"
	"github.com/JaimeStill/canopy/pkg/spatial"
)

// geometryLayerID identifies the submitted geometry in the operational
// layers and the legend.
const geometryLayerID = "case-geometry"

// WebMap is the Web_Map_as_JSON document submitted to the print service.
type WebMap struct {
	MapOptions        MapOptions         `json:"mapOptions"`
	OperationalLayers []OperationalLayer `json:"operationalLayers"`
	BaseMap           BaseMap            `json:"baseMap"`
	ExportOptions     ExportOptions      `json:"exportOptions"`
	LayoutOptions     LayoutOptions      `json:"layoutOptions"`
}

type MapOptions struct {
	Extent           spatial.Envelope         `json:"extent"`
	SpatialReference spatial.SpatialReference `json:"spatialReference"`
}

type OperationalLayer struct {
	ID                string             `json:"id"`
	Title             string             `json:"title"`
	URL               string             `json:"url,omitempty"`
	Opacity           float64            `json:"opacity"`
	Visibility        bool               `json:"visibility"`
	Token             string             `json:"token,omitempty"`
	FeatureCollection *FeatureCollection `json:"featureCollection,omitempty"`
}

type FeatureCollection struct {
	Layers []FeatureLayer `json:"layers"`
}

type FeatureLayer struct {
	LayerDefinition LayerDefinition   `json:"layerDefinition"`
	FeatureSet      arcgis.FeatureSet `json:"featureSet"`
}

type LayerDefinition struct {
	Name         string      `json:"name"`
	GeometryType string      `json:"geometryType"`
	DrawingInfo  DrawingInfo `json:"drawingInfo"`
}

type DrawingInfo struct {
	Renderer Renderer `json:"renderer"`
}

type Renderer struct {
	Type   string `json:"type"`
	Symbol Symbol `json:"symbol"`
}

// Symbol is an Esri simple marker, line, or fill symbol.
type Symbol struct {
	Type    string  `json:"type"`
	Style   string  `json:"style"`
	Color   [4]int  `json:"color"`
	Width   float64 `json:"width,omitempty"`
	Size    float64 `json:"size,omitempty"`
	Outline *Symbol `json:"outline,omitempty"`
}

type BaseMap struct {
	Title         string         `json:"title"`
	BaseMapLayers []BaseMapLayer `json:"baseMapLayers"`
}

type BaseMapLayer struct {
	URL string `json:"url"`
}

type ExportOptions struct {
	DPI        int    `json:"dpi"`
	OutputSize [2]int `json:"outputSize"`
}

type LayoutOptions struct {
	TitleText     string        `json:"titleText,omitempty"`
	CopyrightText string        `json:"copyrightText,omitempty"`
	LegendOptions LegendOptions `json:"legendOptions"`
}

type LegendOptions struct {
	OperationalLayers []LegendLayer `json:"operationalLayers"`
}

type LegendLayer struct {
	ID string `json:"id"`
}

// buildWebMap composes the print document for req. tokens holds bearer
// values for layers that require one, keyed by layer name.
func buildWebMap(cfg *Config, req Request, tokens map[string]string) (*WebMap, error) {
	sr := req.Geometries[0].SpatialReference

	wm := &WebMap{
		MapOptions: MapOptions{
			Extent:           spatial.ExtentOf(req.Geometries).Expand(cfg.Padding, cfg.MinPadding),
			SpatialReference: sr,
		},
		BaseMap: BaseMap{
			Title:         cfg.Basemap.Title,
			BaseMapLayers: []BaseMapLayer{{URL: cfg.Basemap.URL}},
		},
		ExportOptions: ExportOptions{
			DPI:        cfg.DPI,
			OutputSize: [2]int{cfg.Width, cfg.Height},
		},
		LayoutOptions: LayoutOptions{
			TitleText:     req.Layout.Title,
			CopyrightText: cfg.Copyright,
		},
	}

	legend := []LegendLayer{}
	for _, l := range req.Layers {
		wm.OperationalLayers = append(wm.OperationalLayers, OperationalLayer{
			ID:         l.Name,
			Title:      l.Name,
			URL:        l.ServiceURI,
			Opacity:    1,
			Visibility: true,
			Token:      tokens[l.Name],
		})
		legend = append(legend, LegendLayer{ID: l.Name})
	}

	fc, err := geometryCollection(cfg.Symbology, req.Geometries)
	if err != nil {
		return nil, err
	}
	wm.OperationalLayers = append(wm.OperationalLayers, OperationalLayer{
		ID:                geometryLayerID,
		Title:             req.Layout.GeometryTitle(),
		Opacity:           1,
		Visibility:        true,
		FeatureCollection: fc,
	})
	legend = append(legend, LegendLayer{ID: geometryLayerID})

	if req.Layout.Legend {
		wm.LayoutOptions.LegendOptions.OperationalLayers = legend
	} else {
		wm.LayoutOptions.LegendOptions.OperationalLayers = []LegendLayer{}
	}

	return wm, nil
}

// geometryCollection groups geometries into one feature layer per Esri
// geometry type.
func geometryCollection(sym Symbology, geoms []spatial.Geometry) (*FeatureCollection, error) {
	byType := make(map[string]*FeatureLayer)
	var order []string

	for i, g := range geoms {
		esriType := g.EsriGeometryType()
		fl, ok := byType[esriType]
		if !ok {
			sr := g.SpatialReference
			fl = &FeatureLayer{
				LayerDefinition: LayerDefinition{
					Name:         fmt.Sprintf("%s-%d", geometryLayerID, len(order)),
					GeometryType: esriType,
					DrawingInfo:  DrawingInfo{Renderer: Renderer{Type: "simple", Symbol: symbolFor(sym, g.Type)}},
				},
				FeatureSet: arcgis.FeatureSet{GeometryType: esriType, SpatialReference: &sr},
			}
			byType[esriType] = fl
			order = append(order, esriType)
		}

		f, err := arcgis.NewFeature(g, map[string]any{"OBJECTID": i + 1})
		if err != nil {
			return nil, fmt.Errorf("encode geometry %d: %w", i, err)
		}
		fl.FeatureSet.Features = append(fl.FeatureSet.Features, f)
	}

	fc := &FeatureCollection{}
	for _, t := range order {
		fc.Layers = append(fc.Layers, *byType[t])
	}
	return fc, nil
}

func symbolFor(sym Symbology, t spatial.GeometryType) Symbol {
	outline := Symbol{Type: "esriSLS", Style: "esriSLSSolid", Color: sym.OutlineColor, Width: sym.OutlineWidth}
	switch t {
	case spatial.TypePoint:
		return Symbol{Type: "esriSMS", Style: "esriSMSCircle", Color: sym.OutlineColor, Size: sym.MarkerSize, Outline: &outline}
	case spatial.TypePolyline:
		return outline
	default:
		return Symbol{Type: "esriSFS", Style: "esriSFSSolid", Color: sym.FillColor, Outline: &outline}
	}
}

// Marshal encodes the document for the Web_Map_as_JSON parameter.
func (wm *WebMap) Marshal() ([]byte, error) {
	return json.Marshal(wm)
}
