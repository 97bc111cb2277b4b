package schema_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"

	"github.com/tendant/simple-vod/pkg/schema"
)

const completeGroups = `[{"type":"HLS_GROUP","playlistFilePaths":["s3://out/movie.m3u8"],"outputDetails":[
	{"outputFilePaths":["s3://out/movie_1080.m3u8"],"durationInMs":5000,
	 "videoDetails":{"widthInPx":1920,"heightInPx":1080,"qvbrAvgQuality":8.21},
	 "audioDetails":[{"channels":2}],"averageBitrate":5000000}]}]`

func decodeGroups(t *testing.T) []schema.OutputGroupDetail {
	t.Helper()
	var groups []schema.OutputGroupDetail
	if err := json.Unmarshal([]byte(completeGroups), &groups); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return groups
}

func TestOutputDetailKeepsUnmodelledFieldsInJSON(t *testing.T) {
	groups := decodeGroups(t)
	detail := groups[0].OutputDetails[0]
	if detail.DurationInMs != 5000 || detail.VideoDetails == nil || detail.VideoDetails.WidthInPx != 1920 {
		t.Fatalf("modelled fields lost: %+v", detail)
	}
	if _, ok := detail.Extra["outputFilePaths"]; ok {
		t.Fatal("modelled fields must not be duplicated in Extra")
	}
	if string(detail.Extra["averageBitrate"]) != "5000000" {
		t.Fatalf("unexpected extra fields %v", detail.Extra)
	}

	detail.OutputFilePaths = []string{"https://cdn/movie_1080.m3u8"}
	data, err := json.Marshal(detail)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out := string(data)
	for _, want := range []string{
		`"outputFilePaths":["https://cdn/movie_1080.m3u8"]`,
		`"audioDetails":[{"channels":2}]`,
		`"averageBitrate":5000000`,
		`"durationInMs":5000`,
		`"qvbrAvgQuality":8.21`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %s", want, out)
		}
	}
}

func TestOutputDetailKeepsUnmodelledFieldsInDynamoDB(t *testing.T) {
	groups := decodeGroups(t)
	av, err := attributevalue.Marshal(groups)
	if err != nil {
		t.Fatalf("marshal attribute value: %v", err)
	}
	var restored []schema.OutputGroupDetail
	if err := attributevalue.Unmarshal(av, &restored); err != nil {
		t.Fatalf("unmarshal attribute value: %v", err)
	}

	detail := restored[0].OutputDetails[0]
	if detail.DurationInMs != 5000 || detail.OutputFilePaths[0] != "s3://out/movie_1080.m3u8" {
		t.Fatalf("modelled fields lost: %+v", detail)
	}
	if detail.VideoDetails == nil || detail.VideoDetails.HeightInPx != 1080 || string(detail.VideoDetails.Extra["qvbrAvgQuality"]) != "8.21" {
		t.Fatalf("video details lost: %+v", detail.VideoDetails)
	}
	if string(detail.Extra["averageBitrate"]) != "5000000" || string(detail.Extra["audioDetails"]) != `[{"channels":2}]` {
		t.Fatalf("unexpected extra fields %v", detail.Extra)
	}
}
