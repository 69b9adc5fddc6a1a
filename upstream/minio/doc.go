// Package minio implements upstream.Fetcher using the MinIO client.
//
// It works with MinIO and other S3-compatible stores (Ceph, Garage,
// SeaweedFS). The rotation suffix of a media key is sent as the object
// version id.
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	f := mpminio.NewFetcher(client, "media", "feed/")
package minio
