// Package lensmatch embeds the lensmatch scan pipeline in a Go program.
//
// A scan detects objects in a photo, crops each one, uploads the crop to an
// image host and runs a visual search for it. Region failures never stop the
// scan; only an undecodable image or a detector failure aborts it.
//
//	client, _ := lensmatch.New(ctx,
//	    lensmatch.WithImgur(os.Getenv("IMGUR_CLIENT_ID")),
//	    lensmatch.WithSerpAPI(os.Getenv("SERPAPI_KEY")),
//	    lensmatch.WithONNXModel("models/yolov8n.onnx"),
//	    lensmatch.WithRetailFilter(),
//	)
//	defer client.Close()
//
//	rep, err := client.ScanFile(ctx, "living-room.jpg",
//	    lensmatch.OnRegion(func(r lensmatch.Region) { fmt.Println(r.Label, len(r.Matches)) }),
//	)
//
// With WithHistory finished scans are kept in SQLite and can be read back
// through GetScan and ListScans.
package lensmatch
